package postgres

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const notifyChannel = "document_changes"

// notifier holds one dedicated LISTEN connection and dispatches change
// payloads ("collection/id") to registered subscribers. Dispatch runs on the
// listen goroutine, so callbacks for one store are serialized.
type notifier struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu   sync.Mutex
	subs map[int]func(collection, id string)
	next int
}

func newNotifier(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) *notifier {
	n := &notifier{
		pool:   pool,
		logger: logger,
		subs:   make(map[int]func(collection, id string)),
	}
	go n.run(ctx)
	return n
}

func (n *notifier) register(fn func(collection, id string)) func() {
	n.mu.Lock()
	key := n.next
	n.next++
	n.subs[key] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.subs, key)
		n.mu.Unlock()
	}
}

func (n *notifier) run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := n.listen(ctx); err != nil && ctx.Err() == nil {
			n.logger.Warn("listen loop interrupted, reconnecting", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (n *notifier) listen(ctx context.Context) error {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		collection, id, ok := strings.Cut(note.Payload, "/")
		if !ok {
			n.logger.Warn("malformed change payload", zap.String("payload", note.Payload))
			continue
		}
		n.dispatch(collection, id)
	}
}

func (n *notifier) dispatch(collection, id string) {
	n.mu.Lock()
	fns := make([]func(string, string), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(collection, id)
	}
}
