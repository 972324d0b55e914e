// Package store defines the document store contract implemented by concrete
// backends: per-document CRUD keyed by generated ids, compound-field queries,
// and change-notification subscriptions.
package store

import "context"

// Document is a flat map of JSON-ish values (string, float64, bool, []any,
// map[string]any). Absent optional fields are omitted keys; backends reject
// nil values inside nested structures, so writers must sanitize first.
type Document = map[string]any

// Op is a query filter operator.
type Op string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual Op = "=="
	// OpContains matches documents whose array-valued field contains the value.
	// Backends cannot apply predicates inside nested object arrays; OpContains
	// only covers arrays of scalars (e.g. membership lists).
	OpContains Op = "contains"
)

// Filter is one conjunct of a compound query.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Snapshot pairs a document with its id as observed at one point in time.
type Snapshot struct {
	ID   string
	Data Document
}

// CancelFunc tears down a subscription. It is idempotent; callers must invoke
// it on logical teardown to avoid leaking live listeners.
type CancelFunc func()

// SnapshotsFunc receives the full re-derived result set after every upstream
// change, or an empty set plus a terminal error.
type SnapshotsFunc func(snaps []Snapshot, err error)

// SnapshotFunc receives single-document updates. A deleted document is
// delivered as a Snapshot with nil Data.
type SnapshotFunc func(snap Snapshot, err error)

// Store is the generic document database surface. Updates overwrite whole
// top-level field values (last write wins); there is no array merge and no
// multi-document transaction.
type Store interface {
	// Create persists a new document under a generated id.
	Create(ctx context.Context, collection string, doc Document) (string, error)
	// Put creates or replaces the document at a caller-fixed id.
	Put(ctx context.Context, collection, id string, doc Document) error
	// Get loads one document. Returns errs.ErrNotFound if absent and
	// errs.ErrPermissionDenied on authorization rejection.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update overwrites the given top-level fields, leaving others intact.
	// Returns errs.ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query returns all documents matching every filter (conjunction).
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	// Subscribe delivers the filtered result set now and after every change to
	// the collection until cancelled.
	Subscribe(ctx context.Context, collection string, filters []Filter, fn SnapshotsFunc) (CancelFunc, error)
	// Watch delivers one document now and after every change until cancelled.
	Watch(ctx context.Context, collection, id string, fn SnapshotFunc) (CancelFunc, error)
}

// Collection names shared by all backends.
const (
	CollectionUsers       = "users"
	CollectionEvents      = "events"
	CollectionWishlists   = "wishlists"
	CollectionAssignments = "assignments"
)
