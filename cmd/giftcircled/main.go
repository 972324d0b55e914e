// Command giftcircled watches the events collection and logs membership and
// invitation changes. It is the seam where external push-notification
// delivery attaches; delivery itself is out of scope.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/config"
	"github.com/giftcircle/giftcircle/internal/convert"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
	"github.com/giftcircle/giftcircle/internal/store/memory"
	"github.com/giftcircle/giftcircle/internal/store/postgres"
	"github.com/giftcircle/giftcircle/internal/store/surreal"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	if err := run(logger); err != nil {
		logger.Error("daemon failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run owns the daemon lifecycle. Teardown is deferred here so it executes on
// both signal-driven and failure-driven shutdown.
func run(logger *zap.Logger) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	signalCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, stop := context.WithCancel(signalCtx)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	watcher := newInviteWatcher(logger, stop)
	cancel, err := st.Subscribe(ctx, store.CollectionEvents, nil, watcher.observe)
	if err != nil {
		return err
	}
	defer cancel()

	logger.Info("watching events", zap.String("backend", cfg.StoreBackend))
	<-ctx.Done()
	logger.Info("shutting down")
	return watcher.err()
}

// openStore builds the configured backend and a teardown func.
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
		return st, func() {
			if err := st.Close(context.Background()); err != nil {
				logger.Warn("close store", zap.Error(err))
			}
		}, nil
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
		return memory.New(), func() {}, nil
	}
}

// inviteWatcher diffs successive snapshots of the events collection and logs
// invitation and membership transitions. A terminal subscription error stops
// the daemon through the stop func so deferred teardown still runs.
type inviteWatcher struct {
	logger  *zap.Logger
	stop    func()
	seen    map[string]model.Event
	lastErr error
}

func newInviteWatcher(logger *zap.Logger, stop func()) *inviteWatcher {
	return &inviteWatcher{logger: logger, stop: stop, seen: make(map[string]model.Event)}
}

func (w *inviteWatcher) err() error { return w.lastErr }

func (w *inviteWatcher) observe(snaps []store.Snapshot, err error) {
	if err != nil {
		w.logger.Error("event subscription failed", zap.Error(err))
		w.lastErr = err
		w.stop()
		return
	}
	current := make(map[string]model.Event, len(snaps))
	for _, snap := range snaps {
		e := convert.DecodeEvent(snap.ID, snap.Data)
		current[e.ID] = e
		w.diff(e)
	}
	for id := range w.seen {
		if _, ok := current[id]; !ok {
			w.logger.Info("event deleted", zap.String("event_id", id))
		}
	}
	w.seen = current
}

func (w *inviteWatcher) diff(e model.Event) {
	prev, known := w.seen[e.ID]
	if !known {
		w.logger.Info("event observed",
			zap.String("event_id", e.ID),
			zap.Int("members", len(e.Members)),
			zap.Int("invitations", len(e.Invitations)))
	}
	prevStatus := make(map[string]model.InvitationStatus, len(prev.Invitations))
	for _, inv := range prev.Invitations {
		prevStatus[inv.Email] = inv.Status
	}
	for _, inv := range e.Invitations {
		if st, ok := prevStatus[inv.Email]; !known || !ok || st != inv.Status {
			w.logger.Info("invitation changed",
				zap.String("event_id", e.ID),
				zap.String("email", inv.Email),
				zap.String("status", string(inv.Status)))
		}
	}
	if known && len(e.Members) != len(prev.Members) {
		w.logger.Info("membership changed",
			zap.String("event_id", e.ID),
			zap.Int("members", len(e.Members)))
	}
}
