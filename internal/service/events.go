package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/convert"
	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/limiter"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
)

// CreateEventParams carries the fields required to open a new event.
type CreateEventParams struct {
	Name      string
	CreatedBy string
	EventDate *time.Time
}

// UpdateEventParams is a partial event change; nil means "leave unchanged".
type UpdateEventParams struct {
	Name      *string
	EventDate *time.Time
}

// EventFunc receives single-event updates; exists is false once the event has
// been deleted.
type EventFunc func(evt model.Event, exists bool, err error)

// EventService owns the events collection: membership and the invitation
// state machine. Every mutation of the embedded arrays is a read-modify-write
// cycle ending in a whole-field overwrite.
type EventService interface {
	Create(ctx context.Context, params CreateEventParams) (model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	ListForUser(ctx context.Context, userID string) ([]model.Event, error)
	Update(ctx context.Context, id string, params UpdateEventParams) error
	// Delete removes the event only; wishlists and assignments referencing it
	// are left orphaned, never cascaded.
	Delete(ctx context.Context, id, actorID string) error
	// Invite issues or recycles an invitation record for the email.
	Invite(ctx context.Context, eventID, email, invitedBy string) error
	// Accept flips the pending record to accepted and appends the member in
	// one write; partial application would be unrecoverable by retry.
	Accept(ctx context.Context, eventID, userID, email string) error
	// Reject flips the pending record to rejected; membership is untouched.
	Reject(ctx context.Context, eventID, email string) error
	// RemoveMember drops the member and, best-effort, clears the stale
	// accepted invitation so the email can be re-invited.
	RemoveMember(ctx context.Context, eventID, memberID string) error
	Watch(ctx context.Context, eventID string, fn EventFunc) (store.CancelFunc, error)
}

type EventServiceImpl struct {
	store  store.Store
	users  UserService
	lim    limiter.Limiter
	logger *zap.Logger
	now    func() time.Time
}

// NewEventService constructs EventService. The limiter may be nil, which
// disables invite throttling.
func NewEventService(st store.Store, users UserService, lim limiter.Limiter, logger *zap.Logger) *EventServiceImpl {
	return &EventServiceImpl{store: st, users: users, lim: lim, logger: logger, now: time.Now}
}

var _ EventService = (*EventServiceImpl)(nil)

// Create persists a new event with the creator as its sole member.
func (s *EventServiceImpl) Create(ctx context.Context, params CreateEventParams) (model.Event, error) {
	if params.Name == "" {
		return model.Event{}, fmt.Errorf("%w: empty event name", errs.ErrValidation)
	}
	if params.CreatedBy == "" {
		return model.Event{}, fmt.Errorf("%w: empty creator id", errs.ErrValidation)
	}
	e := model.Event{
		Name:      params.Name,
		CreatedBy: params.CreatedBy,
		CreatedAt: s.now(),
		EventDate: params.EventDate,
		Members:   []string{params.CreatedBy},
	}
	id, err := s.store.Create(ctx, store.CollectionEvents, convert.EncodeEvent(e))
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	e.ID = id
	return e, nil
}

// Get loads one event.
func (s *EventServiceImpl) Get(ctx context.Context, id string) (model.Event, error) {
	doc, err := s.store.Get(ctx, store.CollectionEvents, id)
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return convert.DecodeEvent(id, doc), nil
}

// ListForUser returns every event whose membership list contains the user.
func (s *EventServiceImpl) ListForUser(ctx context.Context, userID string) ([]model.Event, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	snaps, err := s.store.Query(ctx, store.CollectionEvents,
		store.Filter{Field: "members", Op: store.OpContains, Value: userID})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	events := make([]model.Event, 0, len(snaps))
	for _, snap := range snaps {
		events = append(events, convert.DecodeEvent(snap.ID, snap.Data))
	}
	sortEvents(events)
	return events, nil
}

// Update overwrites name and/or event date.
func (s *EventServiceImpl) Update(ctx context.Context, id string, params UpdateEventParams) error {
	fields := store.Document{}
	if params.Name != nil {
		if *params.Name == "" {
			return fmt.Errorf("%w: empty event name", errs.ErrValidation)
		}
		fields["name"] = *params.Name
	}
	if params.EventDate != nil {
		fields["eventDate"] = convert.EncodeTime(*params.EventDate)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.store.Update(ctx, store.CollectionEvents, id, fields); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes the event. Only the creator may delete it.
func (s *EventServiceImpl) Delete(ctx context.Context, id, actorID string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if actorID != e.CreatedBy {
		return fmt.Errorf("%w: only the creator may delete the event", errs.ErrPermissionDenied)
	}
	if err := s.store.Delete(ctx, store.CollectionEvents, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// Invite issues an invitation. A pending record for the email fails with
// ErrAlreadyInvited; a previously accepted or rejected record is recycled in
// place so the array never grows unboundedly.
func (s *EventServiceImpl) Invite(ctx context.Context, eventID, email, invitedBy string) error {
	if email == "" {
		return fmt.Errorf("%w: empty email", errs.ErrValidation)
	}
	if invitedBy == "" {
		return fmt.Errorf("%w: empty inviter id", errs.ErrValidation)
	}

	e, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}

	recycle := -1
	for i, inv := range e.Invitations {
		if inv.Email != email {
			continue
		}
		if inv.Status == model.InvitationPending {
			return errs.ErrAlreadyInvited
		}
		recycle = i
		break
	}

	// Quota is consumed only once the invite is known to go through; a
	// mistyped event id or a duplicate never burns an attempt.
	if s.lim != nil {
		ok, retry, err := s.lim.Allow(ctx, invitedBy)
		if err != nil {
			return fmt.Errorf("invite limiter: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
		}
	}

	record := model.Invitation{
		Email:     email,
		Status:    model.InvitationPending,
		InvitedBy: invitedBy,
		InvitedAt: s.now(),
	}
	if recycle >= 0 {
		e.Invitations[recycle] = record
	} else {
		e.Invitations = append(e.Invitations, record)
	}

	return s.writeInvitations(ctx, eventID, e.Invitations)
}

// Accept processes a pending invitation for the email on behalf of userID.
func (s *EventServiceImpl) Accept(ctx context.Context, eventID, userID, email string) error {
	if userID == "" || email == "" {
		return fmt.Errorf("%w: empty user id or email", errs.ErrValidation)
	}
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}

	idx := pendingIndex(e.Invitations, email)
	if idx < 0 {
		return fmt.Errorf("%w: no pending invitation for %s", errs.ErrNotFound, email)
	}
	if e.HasMember(userID) {
		return fmt.Errorf("%w: already a member", errs.ErrConflict)
	}

	e.Invitations[idx].Status = model.InvitationAccepted
	e.Members = append(e.Members, userID)

	// Both fields in one write: member-without-accepted or accepted-without-
	// member would leave the state machine inconsistent.
	err = s.store.Update(ctx, store.CollectionEvents, eventID, store.Document{
		"invitations": convert.EncodeInvitations(e.Invitations),
		"members":     convert.MembersValue(e.Members),
	})
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	return nil
}

// Reject marks a pending invitation rejected. Rejecting a non-pending record
// fails with ErrNotFound rather than double-applying.
func (s *EventServiceImpl) Reject(ctx context.Context, eventID, email string) error {
	if email == "" {
		return fmt.Errorf("%w: empty email", errs.ErrValidation)
	}
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	idx := pendingIndex(e.Invitations, email)
	if idx < 0 {
		return fmt.Errorf("%w: no pending invitation for %s", errs.ErrNotFound, email)
	}
	e.Invitations[idx].Status = model.InvitationRejected
	return s.writeInvitations(ctx, eventID, e.Invitations)
}

// RemoveMember drops a member. The creator is immutable. The member's
// accepted invitation record, if resolvable via their profile email, is
// dropped so a later Invite is not blocked; that cleanup is best-effort and
// never fails the removal.
func (s *EventServiceImpl) RemoveMember(ctx context.Context, eventID, memberID string) error {
	if memberID == "" {
		return fmt.Errorf("%w: empty member id", errs.ErrValidation)
	}
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if memberID == e.CreatedBy {
		return fmt.Errorf("%w: creator cannot be removed", errs.ErrConflict)
	}
	if !e.HasMember(memberID) {
		return fmt.Errorf("%w: not a member", errs.ErrNotFound)
	}

	members := make([]string, 0, len(e.Members)-1)
	for _, m := range e.Members {
		if m != memberID {
			members = append(members, m)
		}
	}

	fields := store.Document{"members": convert.MembersValue(members)}
	if invs, changed := s.dropAcceptedInvitation(ctx, e.Invitations, memberID); changed {
		fields["invitations"] = convert.EncodeInvitations(invs)
	}

	if err := s.store.Update(ctx, store.CollectionEvents, eventID, fields); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// dropAcceptedInvitation resolves the member's email via their profile and
// removes the matching accepted record. Lookup failure only skips the cleanup.
func (s *EventServiceImpl) dropAcceptedInvitation(ctx context.Context, invs []model.Invitation, memberID string) ([]model.Invitation, bool) {
	u, err := s.users.Get(ctx, memberID)
	if err != nil || u == nil || u.Email == "" {
		s.logger.Warn("skipping invitation cleanup, profile unavailable",
			zap.String("member_id", memberID), zap.Error(err))
		return invs, false
	}
	for i, inv := range invs {
		if inv.Email == u.Email && inv.Status == model.InvitationAccepted {
			return append(invs[:i:i], invs[i+1:]...), true
		}
	}
	return invs, false
}

// Watch subscribes to one event document.
func (s *EventServiceImpl) Watch(ctx context.Context, eventID string, fn EventFunc) (store.CancelFunc, error) {
	return s.store.Watch(ctx, store.CollectionEvents, eventID, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(model.Event{}, false, err)
			return
		}
		if snap.Data == nil {
			fn(model.Event{}, false, nil)
			return
		}
		fn(convert.DecodeEvent(snap.ID, snap.Data), true, nil)
	})
}

func (s *EventServiceImpl) writeInvitations(ctx context.Context, eventID string, invs []model.Invitation) error {
	err := s.store.Update(ctx, store.CollectionEvents, eventID, store.Document{
		"invitations": convert.EncodeInvitations(invs),
	})
	if err != nil {
		return fmt.Errorf("write invitations: %w", err)
	}
	return nil
}

func pendingIndex(invs []model.Invitation, email string) int {
	for i, inv := range invs {
		if inv.Email == email && inv.Status == model.InvitationPending {
			return i
		}
	}
	return -1
}

func sortEvents(events []model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
