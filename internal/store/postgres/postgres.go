package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/store"
)

// Store persists documents in the documents table. Top-level field overwrite
// uses the jsonb || operator, which replaces whole field values and never
// merges arrays, matching the engine's last-write-wins semantics.
type Store struct {
	db       *DB
	logger   *zap.Logger
	notifier *notifier
}

var _ store.Store = (*Store)(nil)

// New opens a pool, and starts the LISTEN loop backing subscriptions.
// Callers run MigrateUp beforehand.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := NewDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pool, ok := db.Pool.(*pgxpool.Pool)
	if !ok {
		return nil, errors.New("pool does not support LISTEN")
	}
	return &Store{db: db, logger: logger, notifier: newNotifier(ctx, pool, logger)}, nil
}

// NewWithDB wraps an existing pool. Subscriptions are unavailable; CRUD and
// queries work, which is what the pgxmock-backed tests exercise.
func NewWithDB(db *DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close shuts down the pool.
func (s *Store) Close() { s.db.Close() }

// Create persists a new document under a generated id.
func (s *Store) Create(ctx context.Context, collection string, doc store.Document) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	const ins = `INSERT INTO documents (collection, id, data) VALUES ($1,$2,$3)`
	if _, err := s.db.Pool.Exec(ctx, ins, collection, id.String(), data); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Put creates or replaces the document at a fixed id.
func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	const upsert = `
INSERT INTO documents (collection, id, data) VALUES ($1,$2,$3)
ON CONFLICT (collection, id) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`
	_, err = s.db.Pool.Exec(ctx, upsert, collection, id, data)
	return err
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	const sel = `SELECT data FROM documents WHERE collection=$1 AND id=$2`
	var data []byte
	err := s.db.Pool.QueryRow(ctx, sel, collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Update overwrites the given top-level fields, leaving others intact.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Document) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	const upd = `UPDATE documents SET data = data || $3::jsonb, updated_at=now() WHERE collection=$1 AND id=$2`
	tag, err := s.db.Pool.Exec(ctx, upd, collection, id, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the document; deleting an absent row is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	const del = `DELETE FROM documents WHERE collection=$1 AND id=$2`
	_, err := s.db.Pool.Exec(ctx, del, collection, id)
	return err
}

// Query returns all documents matching every filter.
func (s *Store) Query(ctx context.Context, collection string, filters ...store.Filter) ([]store.Snapshot, error) {
	sql, args := buildQuery(collection, filters)
	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []store.Snapshot{}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var doc store.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		snaps = append(snaps, store.Snapshot{ID: id, Data: doc})
	}
	return snaps, rows.Err()
}

// buildQuery assembles the filtered SELECT. Field names originate from engine
// code, never from user input.
func buildQuery(collection string, filters []store.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT id, data FROM documents WHERE collection=$1`)
	args := []any{collection}
	for _, f := range filters {
		n := len(args) + 1
		switch f.Op {
		case store.OpContains:
			// jsonb ? operator: membership in a top-level string array.
			fmt.Fprintf(&b, ` AND data->'%s' ? $%d`, f.Field, n)
		default:
			fmt.Fprintf(&b, ` AND data->>'%s' = $%d`, f.Field, n)
		}
		args = append(args, fmt.Sprint(f.Value))
	}
	return b.String(), args
}

// Subscribe re-runs the filtered query after every change to the collection.
func (s *Store) Subscribe(ctx context.Context, collection string, filters []store.Filter, fn store.SnapshotsFunc) (store.CancelFunc, error) {
	if s.notifier == nil {
		return nil, errors.New("subscriptions unavailable without LISTEN support")
	}
	initial, err := s.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	fn(initial, nil)

	cancel := s.notifier.register(func(col, _ string) {
		if col != collection {
			return
		}
		snaps, err := s.Query(context.Background(), collection, filters...)
		if err != nil {
			fn([]store.Snapshot{}, err)
			return
		}
		fn(snaps, nil)
	})
	return cancel, nil
}

// Watch re-reads one document after every change to it.
func (s *Store) Watch(ctx context.Context, collection, id string, fn store.SnapshotFunc) (store.CancelFunc, error) {
	if s.notifier == nil {
		return nil, errors.New("subscriptions unavailable without LISTEN support")
	}
	emit := func(ctx context.Context) {
		doc, err := s.Get(ctx, collection, id)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			fn(store.Snapshot{ID: id}, err)
			return
		}
		fn(store.Snapshot{ID: id, Data: doc}, nil)
	}
	emit(ctx)

	cancel := s.notifier.register(func(col, changed string) {
		if col != collection || changed != id {
			return
		}
		emit(context.Background())
	})
	return cancel, nil
}
