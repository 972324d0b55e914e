package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, "ws://localhost:8000/rpc", cfg.Surreal.Endpoint)
	require.Equal(t, "giftcircle", cfg.Surreal.Namespace)
	require.Equal(t, 10, cfg.Invites.WindowMinutes)
	require.Equal(t, 20, cfg.Invites.Burst)
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", BackendPostgres)
	t.Setenv("DATABASE_DSN", "postgres://app:app@db:5432/app")
	t.Setenv("SURREAL_USERNAME", "root")
	t.Setenv("IDENTITY_SECRET", "s3cret")
	t.Setenv("INVITES_BURST", "5")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, "postgres://app:app@db:5432/app", cfg.Database.DSN)
	require.Equal(t, "root", cfg.Surreal.Username)
	require.Equal(t, "s3cret", cfg.Identity.Secret)
	require.Equal(t, 5, cfg.Invites.Burst)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := New()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown store backend")
}
