package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/identity"
	"github.com/giftcircle/giftcircle/internal/store"
)

func TestEnsureProfile_CreatesLazilyThenReturnsStored(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	p := identity.Principal{ID: "u1", Email: "a@x.com", DisplayName: "Alice"}

	u, err := e.users.EnsureProfile(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", u.Email)
	require.False(t, u.CreatedAt.IsZero())

	// A second sign-in with changed claims returns the stored copy untouched.
	p.DisplayName = "Alicia"
	again, err := e.users.EnsureProfile(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "Alice", again.DisplayName)
}

func TestEnsureProfile_EmptyPrincipal(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, err := e.users.EnsureProfile(context.Background(), identity.Principal{})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestUserGet(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.profile(t, "u1", "a@x.com", "Alice")

	u, err := e.users.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "a@x.com", u.Email)

	_, err = e.users.Get(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.users.Get(ctx, "")
	require.ErrorIs(t, err, errs.ErrValidation)
}

// deniedStore refuses every read, mimicking backend security rules.
type deniedStore struct {
	store.Store
}

func (deniedStore) Get(context.Context, string, string) (store.Document, error) {
	return nil, errs.ErrPermissionDenied
}

func TestProfileReads_DegradeOnPermissionDenied(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	users := NewUserService(deniedStore{Store: e.store}, zap.NewNop())

	// EnsureProfile falls back to the caller's own claims without persisting.
	u, err := users.EnsureProfile(ctx, identity.Principal{ID: "u1", Email: "a@x.com", DisplayName: "Alice"})
	require.NoError(t, err)
	require.Equal(t, "a@x.com", u.Email)
	require.True(t, u.CreatedAt.IsZero(), "claims-only profile is never persisted")
	_, err = e.store.Get(ctx, store.CollectionUsers, "u1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	// Get treats denial as "no profile".
	got, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
}
