package surreal

import (
	"context"
	"fmt"
	"sync"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"go.uber.org/zap"
)

const connectionDeleteAction = connection.DeleteAction

// liveFeed wraps one live query and its notification channel. Kill closes the
// channel on the SDK side, which terminates the consumer goroutine.
type liveFeed struct {
	ch     chan connection.Notification
	cancel func()
}

func (s *Store) liveFeed(ctx context.Context, collection string) (*liveFeed, error) {
	live, err := surrealdb.Live(ctx, s.db, models.Table(collection), false)
	if err != nil {
		return nil, fmt.Errorf("start live query on %s: %w", collection, err)
	}
	ch, err := s.db.LiveNotifications(live.String())
	if err != nil {
		return nil, fmt.Errorf("open live notifications on %s: %w", collection, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := surrealdb.Kill(context.Background(), s.db, live.String()); err != nil {
				s.logger.Warn("kill live query",
					zap.String("collection", collection), zap.Error(err))
			}
		})
	}
	return &liveFeed{ch: ch, cancel: cancel}, nil
}
