// Command seed populates the configured store with a small demo data set:
// two users, one event with an accepted invitation, a wishlist with items and
// a purchased assignment. Useful for exercising a fresh backend.
package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/config"
	"github.com/giftcircle/giftcircle/internal/identity"
	"github.com/giftcircle/giftcircle/internal/limiter"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/service"
	"github.com/giftcircle/giftcircle/internal/store"
	"github.com/giftcircle/giftcircle/internal/store/postgres"
	"github.com/giftcircle/giftcircle/internal/store/surreal"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	if err := seed(ctx, st, cfg, logger); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	logger.Info("seed complete")
}

func seed(ctx context.Context, st store.Store, cfg *config.Config, logger *zap.Logger) error {
	users := service.NewUserService(st, logger)
	lim := limiter.NewSlidingWindow(time.Duration(cfg.Invites.WindowMinutes)*time.Minute, cfg.Invites.Burst)
	events := service.NewEventService(st, users, lim, logger)
	assignments := service.NewAssignmentService(st, logger)
	wishlists := service.NewWishlistService(st, assignments, logger)

	alice, err := users.EnsureProfile(ctx, identity.Principal{
		ID: "seed-alice", Email: "alice@example.com", DisplayName: "Alice",
	})
	if err != nil {
		return err
	}
	bob, err := users.EnsureProfile(ctx, identity.Principal{
		ID: "seed-bob", Email: "bob@example.com", DisplayName: "Bob",
	})
	if err != nil {
		return err
	}

	evt, err := events.Create(ctx, service.CreateEventParams{
		Name:      "Winter Gift Exchange",
		CreatedBy: alice.ID,
	})
	if err != nil {
		return err
	}
	if err := events.Invite(ctx, evt.ID, bob.Email, alice.ID); err != nil {
		return err
	}
	if err := events.Accept(ctx, evt.ID, bob.ID, bob.Email); err != nil {
		return err
	}

	wl, err := wishlists.Create(ctx, service.CreateWishlistParams{
		Name:      "Alice's wishes",
		EventID:   evt.ID,
		CreatedBy: alice.ID,
	})
	if err != nil {
		return err
	}
	first, err := wishlists.AddItem(ctx, wl.ID, model.WishlistItem{
		Name:  "Fountain pen",
		Link:  "https://example.com/pen",
		Price: "35",
	})
	if err != nil {
		return err
	}
	if _, err := wishlists.AddItem(ctx, wl.ID, model.WishlistItem{
		Name:       "Wool scarf",
		IsFavorite: true,
	}); err != nil {
		return err
	}

	if _, err := assignments.Create(ctx, service.CreateAssignmentParams{
		EventID:    evt.ID,
		WishlistID: wl.ID,
		AssignedTo: bob.ID,
		AssignedBy: alice.ID,
	}); err != nil {
		return err
	}
	if err := wishlists.MarkPurchased(ctx, wl.ID, first.ID, bob.ID); err != nil {
		return err
	}

	logger.Info("seeded",
		zap.String("event_id", evt.ID),
		zap.String("wishlist_id", wl.ID))
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSurreal:
		st, err := surreal.New(ctx, surreal.Config{
			Endpoint:  cfg.Surreal.Endpoint,
			Namespace: cfg.Surreal.Namespace,
			Database:  cfg.Surreal.Database,
			Username:  cfg.Surreal.Username,
			Password:  cfg.Surreal.Password,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close(context.Background()) }, nil
	case config.BackendPostgres:
		if err := postgres.MigrateUp(ctx, cfg.Database.DSN); err != nil {
			return nil, nil, err
		}
		st, err := postgres.New(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, errors.New("seeding the in-memory backend is pointless; set STORE_BACKEND")
	}
}
