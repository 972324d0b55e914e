// Package surreal implements the store contract on SurrealDB. Queries use
// SurrealQL over the RPC connection; subscriptions use Live Queries with
// client-side re-filtering, since the change feed covers a whole table.
package surreal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/store"
)

// Config carries connection parameters for the SurrealDB endpoint.
type Config struct {
	Endpoint  string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store adapts a SurrealDB connection to the document store contract.
type Store struct {
	db     *surrealdb.DB
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New connects, selects the namespace/database and authenticates.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to surrealdb: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("use namespace/database: %w", err)
	}
	if cfg.Username != "" {
		token, err := db.SignIn(ctx, &surrealdb.Auth{Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
		if err := db.Authenticate(ctx, token); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}
	return &Store{db: db, logger: logger}, nil
}

// Close terminates the underlying connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// Create persists a new document under a server-generated record id.
func (s *Store) Create(ctx context.Context, collection string, doc store.Document) (string, error) {
	created, err := surrealdb.Create[map[string]any](ctx, s.db, collection, map[string]any(doc))
	if err != nil {
		return "", mapErr(err)
	}
	if created == nil {
		return "", fmt.Errorf("create in %s: empty result", collection)
	}
	id, ok := recordKey(*created)
	if !ok {
		return "", fmt.Errorf("create in %s: missing record id", collection)
	}
	return id, nil
}

// Put creates or replaces the document at a fixed id.
func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	_, err := surrealdb.Query[[]map[string]any](ctx, s.db,
		`UPSERT type::thing($tb, $id) CONTENT $content`,
		map[string]any{"tb": collection, "id": id, "content": map[string]any(doc)},
	)
	return mapErr(err)
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	selected, err := surrealdb.Select[map[string]any](ctx, s.db, models.NewRecordID(collection, id))
	if err != nil {
		return nil, mapErr(err)
	}
	if selected == nil || len(*selected) == 0 {
		return nil, errs.ErrNotFound
	}
	return stripRecordKey(*selected), nil
}

// Update overwrites the given top-level fields. SurrealQL MERGE replaces whole
// field values, which preserves the engine's whole-array overwrite semantics.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Document) error {
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db,
		`UPDATE type::thing($tb, $id) MERGE $fields RETURN AFTER`,
		map[string]any{"tb": collection, "id": id, "fields": map[string]any(fields)},
	)
	if err != nil {
		return mapErr(err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the document; deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := surrealdb.Delete[map[string]any](ctx, s.db, models.NewRecordID(collection, id))
	return mapErr(err)
}

// Query runs a filtered SELECT over the collection.
func (s *Store) Query(ctx context.Context, collection string, filters ...store.Filter) ([]store.Snapshot, error) {
	sql, vars := buildSelect(collection, filters)
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return nil, mapErr(err)
	}
	snaps := []store.Snapshot{}
	if results == nil {
		return snaps, nil
	}
	for _, res := range *results {
		for _, row := range res.Result {
			if id, ok := recordKey(row); ok {
				snaps = append(snaps, store.Snapshot{ID: id, Data: stripRecordKey(row)})
			}
		}
	}
	return snaps, nil
}

// buildSelect assembles the SurrealQL statement for a compound-field query.
// Field names originate from engine code, never from user input.
func buildSelect(collection string, filters []store.Filter) (string, map[string]any) {
	var b strings.Builder
	b.WriteString(`SELECT * FROM type::table($tb)`)
	vars := map[string]any{"tb": collection}
	for i, f := range filters {
		if i == 0 {
			b.WriteString(` WHERE `)
		} else {
			b.WriteString(` AND `)
		}
		param := fmt.Sprintf("p%d", i)
		switch f.Op {
		case store.OpContains:
			fmt.Fprintf(&b, `$%s IN %s`, param, f.Field)
		default:
			fmt.Fprintf(&b, `%s = $%s`, f.Field, param)
		}
		vars[param] = f.Value
	}
	return b.String(), vars
}

// Subscribe starts a live query over the whole table and re-derives the
// filtered result set client-side on every notification.
func (s *Store) Subscribe(ctx context.Context, collection string, filters []store.Filter, fn store.SnapshotsFunc) (store.CancelFunc, error) {
	feed, err := s.liveFeed(ctx, collection)
	if err != nil {
		return nil, err
	}

	cache := map[string]store.Document{}
	initial, err := s.Query(ctx, collection)
	if err != nil {
		feed.cancel()
		return nil, err
	}
	for _, snap := range initial {
		cache[snap.ID] = snap.Data
	}

	emit := func() {
		snaps := []store.Snapshot{}
		for id, doc := range cache {
			if store.Matches(doc, filters) {
				snaps = append(snaps, store.Snapshot{ID: id, Data: doc})
			}
		}
		fn(snaps, nil)
	}
	emit()

	go func() {
		for n := range feed.ch {
			id, doc, ok := decodeNotification(n.Result)
			if !ok {
				s.logger.Warn("live notification with unexpected payload",
					zap.String("collection", collection))
				continue
			}
			if n.Action == connectionDeleteAction {
				delete(cache, id)
			} else {
				cache[id] = doc
			}
			emit()
		}
	}()
	return feed.cancel, nil
}

// Watch starts a live query over the table and forwards changes to one record.
func (s *Store) Watch(ctx context.Context, collection, id string, fn store.SnapshotFunc) (store.CancelFunc, error) {
	feed, err := s.liveFeed(ctx, collection)
	if err != nil {
		return nil, err
	}

	doc, err := s.Get(ctx, collection, id)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		feed.cancel()
		return nil, err
	}
	fn(store.Snapshot{ID: id, Data: doc}, nil)

	go func() {
		for n := range feed.ch {
			nid, ndoc, ok := decodeNotification(n.Result)
			if !ok || nid != id {
				continue
			}
			if n.Action == connectionDeleteAction {
				fn(store.Snapshot{ID: id}, nil)
				continue
			}
			fn(store.Snapshot{ID: id, Data: ndoc}, nil)
		}
	}()
	return feed.cancel, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("%w: %v", errs.ErrPermissionDenied, err)
	}
	return err
}

// recordKey extracts the bare record id from a returned document.
func recordKey(doc map[string]any) (string, bool) {
	rid, ok := doc["id"].(models.RecordID)
	if !ok {
		return "", false
	}
	return fmt.Sprint(rid.ID), true
}

func stripRecordKey(doc map[string]any) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func decodeNotification(result any) (string, store.Document, bool) {
	row, ok := result.(map[string]any)
	if !ok {
		return "", nil, false
	}
	id, ok := recordKey(row)
	if !ok {
		return "", nil, false
	}
	return id, stripRecordKey(row), true
}
