// Package memory implements the store contract with in-process maps and a
// synchronous subscriber registry. It backs tests and the embedded mode.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/store"
)

// Store keeps every collection in memory. Change notifications are delivered
// synchronously on the mutating goroutine, which keeps tests deterministic.
type Store struct {
	mu    sync.RWMutex
	data  map[string]map[string]store.Document // collection -> id -> doc
	subs  map[int]*subscription
	next  int
	watch map[int]*docWatch
}

type subscription struct {
	collection string
	filters    []store.Filter
	fn         store.SnapshotsFunc
}

type docWatch struct {
	collection string
	id         string
	fn         store.SnapshotFunc
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		data:  make(map[string]map[string]store.Document),
		subs:  make(map[int]*subscription),
		watch: make(map[int]*docWatch),
	}
}

var _ store.Store = (*Store)(nil)

// Create persists a new document under a generated id.
func (s *Store) Create(_ context.Context, collection string, doc store.Document) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	s.put(collection, id.String(), doc)
	return id.String(), nil
}

// Put creates or replaces the document at a fixed id.
func (s *Store) Put(_ context.Context, collection, id string, doc store.Document) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	s.put(collection, id, doc)
	return nil
}

// Get loads one document.
func (s *Store) Get(_ context.Context, collection, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return deepCopy(doc), nil
}

// Update overwrites the given top-level fields on an existing document.
func (s *Store) Update(_ context.Context, collection, id string, fields store.Document) error {
	s.mu.Lock()
	doc, ok := s.data[collection][id]
	if !ok {
		s.mu.Unlock()
		return errs.ErrNotFound
	}
	merged := deepCopy(doc)
	for k, v := range fields {
		merged[k] = deepCopyValue(v)
	}
	s.data[collection][id] = merged
	s.mu.Unlock()

	s.notify(collection, id)
	return nil
}

// Delete removes the document; deleting an absent one is a no-op.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	col, ok := s.data[collection]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if _, ok := col[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(col, id)
	s.mu.Unlock()

	s.notify(collection, id)
	return nil
}

// Query returns every document matching all filters, in unspecified order.
func (s *Store) Query(_ context.Context, collection string, filters ...store.Filter) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(collection, filters), nil
}

// Subscribe registers fn and immediately delivers the current result set.
func (s *Store) Subscribe(_ context.Context, collection string, filters []store.Filter, fn store.SnapshotsFunc) (store.CancelFunc, error) {
	s.mu.Lock()
	key := s.next
	s.next++
	s.subs[key] = &subscription{collection: collection, filters: filters, fn: fn}
	initial := s.queryLocked(collection, filters)
	s.mu.Unlock()

	fn(initial, nil)
	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}, nil
}

// Watch registers fn on one document and immediately delivers its state.
func (s *Store) Watch(_ context.Context, collection, id string, fn store.SnapshotFunc) (store.CancelFunc, error) {
	s.mu.Lock()
	key := s.next
	s.next++
	s.watch[key] = &docWatch{collection: collection, id: id, fn: fn}
	snap := store.Snapshot{ID: id}
	if doc, ok := s.data[collection][id]; ok {
		snap.Data = deepCopy(doc)
	}
	s.mu.Unlock()

	fn(snap, nil)
	return func() {
		s.mu.Lock()
		delete(s.watch, key)
		s.mu.Unlock()
	}, nil
}

func (s *Store) put(collection, id string, doc store.Document) {
	s.mu.Lock()
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string]store.Document)
		s.data[collection] = col
	}
	col[id] = deepCopy(doc)
	s.mu.Unlock()

	s.notify(collection, id)
}

// notify re-derives every matching subscription's result set. Callbacks run
// outside the lock so they may call back into the store.
func (s *Store) notify(collection, id string) {
	type colDelivery struct {
		fn    store.SnapshotsFunc
		snaps []store.Snapshot
	}
	type docDelivery struct {
		fn   store.SnapshotFunc
		snap store.Snapshot
	}

	s.mu.RLock()
	var cols []colDelivery
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		cols = append(cols, colDelivery{fn: sub.fn, snaps: s.queryLocked(collection, sub.filters)})
	}
	var docs []docDelivery
	for _, w := range s.watch {
		if w.collection != collection || w.id != id {
			continue
		}
		snap := store.Snapshot{ID: id}
		if doc, ok := s.data[collection][id]; ok {
			snap.Data = deepCopy(doc)
		}
		docs = append(docs, docDelivery{fn: w.fn, snap: snap})
	}
	s.mu.RUnlock()

	for _, d := range cols {
		d.fn(d.snaps, nil)
	}
	for _, d := range docs {
		d.fn(d.snap, nil)
	}
}

func (s *Store) queryLocked(collection string, filters []store.Filter) []store.Snapshot {
	out := []store.Snapshot{}
	for id, doc := range s.data[collection] {
		if store.Matches(doc, filters) {
			out = append(out, store.Snapshot{ID: id, Data: deepCopy(doc)})
		}
	}
	return out
}

func deepCopy(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case store.Document:
		return deepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = deepCopyValue(elem)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
