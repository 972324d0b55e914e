package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/identity"
	"github.com/giftcircle/giftcircle/internal/store"
	"github.com/giftcircle/giftcircle/internal/store/memory"
)

// env bundles the engines over one in-memory store for service tests.
type env struct {
	store       *memory.Store
	users       *UserServiceImpl
	events      *EventServiceImpl
	assignments *AssignmentServiceImpl
	wishlists   *WishlistServiceImpl
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	logger := zap.NewNop()
	users := NewUserService(st, logger)
	assignments := NewAssignmentService(st, logger)
	return &env{
		store:       st,
		users:       users,
		events:      NewEventService(st, users, nil, logger),
		assignments: assignments,
		wishlists:   NewWishlistService(st, assignments, logger),
	}
}

func (e *env) profile(t *testing.T, id, email, name string) {
	t.Helper()
	_, err := e.users.EnsureProfile(context.Background(), identity.Principal{
		ID: id, Email: email, DisplayName: name,
	})
	if err != nil {
		t.Fatalf("ensure profile %s: %v", id, err)
	}
}

// rawDoc reads a document straight from the store, bypassing the engines.
func (e *env) rawDoc(t *testing.T, collection, id string) store.Document {
	t.Helper()
	doc, err := e.store.Get(context.Background(), collection, id)
	if err != nil {
		t.Fatalf("raw get %s/%s: %v", collection, id, err)
	}
	return doc
}
