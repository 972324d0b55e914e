package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/convert"
	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
)

// CreateAssignmentParams carries the fields required for a new assignment.
type CreateAssignmentParams struct {
	EventID    string
	WishlistID string
	AssignedTo string
	AssignedBy string
}

// AssignmentsFunc receives the re-derived assignment set for one event.
type AssignmentsFunc func(assignments []model.Assignment, err error)

// AssignmentService owns the assignments collection and its uniqueness rule:
// at most one assignment per (event, wishlist, assignee) triple. The check is
// query-then-insert across two round-trips; concurrent callers can both pass
// it, which is an accepted race without store transactions.
type AssignmentService interface {
	Create(ctx context.Context, params CreateAssignmentParams) (model.Assignment, error)
	Get(ctx context.Context, id string) (model.Assignment, error)
	ListForEvent(ctx context.Context, eventID string) ([]model.Assignment, error)
	// GetForWishlist returns the wishlist's assignment, or nil when none
	// exists. Assignment granularity is per wishlist, not per item.
	GetForWishlist(ctx context.Context, eventID, wishlistID string) (*model.Assignment, error)
	// UpdateStatus overwrites the status unconditionally; pending and
	// purchased are freely bidirectional.
	UpdateStatus(ctx context.Context, id string, status model.AssignmentStatus) error
	Delete(ctx context.Context, id string) error
	SubscribeForEvent(ctx context.Context, eventID string, fn AssignmentsFunc) (store.CancelFunc, error)
}

type AssignmentServiceImpl struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(st store.Store, logger *zap.Logger) *AssignmentServiceImpl {
	return &AssignmentServiceImpl{store: st, logger: logger, now: time.Now}
}

var _ AssignmentService = (*AssignmentServiceImpl)(nil)

// Create inserts a new pending assignment after the uniqueness pre-check.
// Self-assignment is rejected here rather than trusted to callers.
func (s *AssignmentServiceImpl) Create(ctx context.Context, params CreateAssignmentParams) (model.Assignment, error) {
	if params.EventID == "" || params.WishlistID == "" || params.AssignedTo == "" || params.AssignedBy == "" {
		return model.Assignment{}, fmt.Errorf("%w: missing assignment field", errs.ErrValidation)
	}
	if params.AssignedTo == params.AssignedBy {
		return model.Assignment{}, fmt.Errorf("%w: cannot assign a wishlist to its assigner", errs.ErrValidation)
	}

	existing, err := s.store.Query(ctx, store.CollectionAssignments,
		store.Filter{Field: "eventId", Op: store.OpEqual, Value: params.EventID},
		store.Filter{Field: "wishlistId", Op: store.OpEqual, Value: params.WishlistID},
		store.Filter{Field: "assignedTo", Op: store.OpEqual, Value: params.AssignedTo},
	)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("check existing assignment: %w", err)
	}
	if len(existing) > 0 {
		return model.Assignment{}, fmt.Errorf("%w: assignment already exists", errs.ErrConflict)
	}

	a := model.Assignment{
		EventID:    params.EventID,
		WishlistID: params.WishlistID,
		AssignedTo: params.AssignedTo,
		AssignedBy: params.AssignedBy,
		CreatedAt:  s.now(),
		Status:     model.AssignmentPending,
	}
	id, err := s.store.Create(ctx, store.CollectionAssignments, convert.EncodeAssignment(a))
	if err != nil {
		return model.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}
	a.ID = id
	return a, nil
}

// Get loads one assignment.
func (s *AssignmentServiceImpl) Get(ctx context.Context, id string) (model.Assignment, error) {
	doc, err := s.store.Get(ctx, store.CollectionAssignments, id)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return convert.DecodeAssignment(id, doc), nil
}

// ListForEvent returns every assignment within the event.
func (s *AssignmentServiceImpl) ListForEvent(ctx context.Context, eventID string) ([]model.Assignment, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: empty event id", errs.ErrValidation)
	}
	snaps, err := s.store.Query(ctx, store.CollectionAssignments,
		store.Filter{Field: "eventId", Op: store.OpEqual, Value: eventID})
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	return decodeAssignments(snaps), nil
}

// GetForWishlist returns the single expected assignment for the wishlist.
// Duplicates from the accepted insert race are tolerated: the first match
// wins and the condition is logged.
func (s *AssignmentServiceImpl) GetForWishlist(ctx context.Context, eventID, wishlistID string) (*model.Assignment, error) {
	snaps, err := s.store.Query(ctx, store.CollectionAssignments,
		store.Filter{Field: "eventId", Op: store.OpEqual, Value: eventID},
		store.Filter{Field: "wishlistId", Op: store.OpEqual, Value: wishlistID},
	)
	if err != nil {
		return nil, fmt.Errorf("query assignment: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	if len(snaps) > 1 {
		s.logger.Warn("multiple assignments for one wishlist",
			zap.String("event_id", eventID), zap.String("wishlist_id", wishlistID))
	}
	a := convert.DecodeAssignment(snaps[0].ID, snaps[0].Data)
	return &a, nil
}

// UpdateStatus overwrites the status field.
func (s *AssignmentServiceImpl) UpdateStatus(ctx context.Context, id string, status model.AssignmentStatus) error {
	if status != model.AssignmentPending && status != model.AssignmentPurchased {
		return fmt.Errorf("%w: unknown status %q", errs.ErrValidation, status)
	}
	if err := s.store.Update(ctx, store.CollectionAssignments, id, store.Document{"status": string(status)}); err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return nil
}

// Delete removes the assignment.
func (s *AssignmentServiceImpl) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, store.CollectionAssignments, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// SubscribeForEvent delivers the event's assignment set after every change.
func (s *AssignmentServiceImpl) SubscribeForEvent(ctx context.Context, eventID string, fn AssignmentsFunc) (store.CancelFunc, error) {
	filters := []store.Filter{{Field: "eventId", Op: store.OpEqual, Value: eventID}}
	return s.store.Subscribe(ctx, store.CollectionAssignments, filters, func(snaps []store.Snapshot, err error) {
		if err != nil {
			fn([]model.Assignment{}, err)
			return
		}
		fn(decodeAssignments(snaps), nil)
	})
}

func decodeAssignments(snaps []store.Snapshot) []model.Assignment {
	out := make([]model.Assignment, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, convert.DecodeAssignment(snap.ID, snap.Data))
	}
	return out
}
