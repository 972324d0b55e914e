package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/limiter"
	"github.com/giftcircle/giftcircle/internal/model"
)

func TestEventCreate_CreatorIsSoleMember(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, err := e.events.Create(ctx, CreateEventParams{Name: "Birthday", CreatedBy: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, evt.ID)
	require.Equal(t, []string{"u1"}, evt.Members)

	got, err := e.events.Get(ctx, evt.ID)
	require.NoError(t, err)
	require.Equal(t, "u1", got.CreatedBy)
	require.True(t, got.HasMember("u1"))
	require.Empty(t, got.Invitations)
}

func TestEventCreate_Validation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.events.Create(ctx, CreateEventParams{CreatedBy: "u1"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = e.events.Create(ctx, CreateEventParams{Name: "X"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestInvite_NewRecordIsPending(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, err := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, err)

	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))

	got, err := e.events.Get(ctx, evt.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, got.Members)
	require.Len(t, got.Invitations, 1)
	require.Equal(t, "b@x.com", got.Invitations[0].Email)
	require.Equal(t, model.InvitationPending, got.Invitations[0].Status)
	require.Equal(t, "u1", got.Invitations[0].InvitedBy)
	require.False(t, got.Invitations[0].InvitedAt.IsZero())
}

func TestInvite_PendingDuplicateFails(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))

	err := e.events.Invite(ctx, evt.ID, "b@x.com", "u1")
	require.ErrorIs(t, err, errs.ErrAlreadyInvited)
	require.ErrorIs(t, err, errs.ErrConflict)

	got, _ := e.events.Get(ctx, evt.ID)
	require.Len(t, got.Invitations, 1, "rejection must not grow the array")
}

func TestInvite_RecyclesRejectedRecordInPlace(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "a@x.com", "u1"))
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
	require.NoError(t, e.events.Reject(ctx, evt.ID, "a@x.com"))

	require.NoError(t, e.events.Invite(ctx, evt.ID, "a@x.com", "u2"))

	got, _ := e.events.Get(ctx, evt.ID)
	require.Len(t, got.Invitations, 2)
	// Same array position, reset fields.
	require.Equal(t, "a@x.com", got.Invitations[0].Email)
	require.Equal(t, model.InvitationPending, got.Invitations[0].Status)
	require.Equal(t, "u2", got.Invitations[0].InvitedBy)
}

func TestInvite_EventNotFound(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	err := e.events.Invite(context.Background(), "missing", "b@x.com", "u1")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestInvite_RateLimited(t *testing.T) {
	t.Parallel()
	st := newEnv(t)
	ctx := context.Background()
	limited := NewEventService(st.store, st.users, limiter.NewSlidingWindow(time.Hour, 1), zap.NewNop())

	evt, _ := limited.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, limited.Invite(ctx, evt.ID, "a@x.com", "u1"))

	err := limited.Invite(ctx, evt.ID, "b@x.com", "u1")
	require.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestInvite_FailedAttemptsDoNotConsumeQuota(t *testing.T) {
	t.Parallel()
	st := newEnv(t)
	ctx := context.Background()
	limited := NewEventService(st.store, st.users, limiter.NewSlidingWindow(time.Hour, 2), zap.NewNop())

	evt, _ := limited.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, limited.Invite(ctx, evt.ID, "a@x.com", "u1"))

	// A mistyped event id and a duplicate invite both fail without burning
	// an attempt.
	require.ErrorIs(t, limited.Invite(ctx, "missing", "b@x.com", "u1"), errs.ErrNotFound)
	require.ErrorIs(t, limited.Invite(ctx, evt.ID, "a@x.com", "u1"), errs.ErrAlreadyInvited)

	// The second (and last) budgeted attempt still goes through.
	require.NoError(t, limited.Invite(ctx, evt.ID, "b@x.com", "u1"))
	require.ErrorIs(t, limited.Invite(ctx, evt.ID, "c@x.com", "u1"), errs.ErrRateLimited)
}

func TestAccept_FlipsRecordAndAppendsMemberInOneWrite(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
	require.NoError(t, e.events.Accept(ctx, evt.ID, "u2", "b@x.com"))

	got, _ := e.events.Get(ctx, evt.ID)
	require.Equal(t, []string{"u1", "u2"}, got.Members)
	require.Len(t, got.Invitations, 1)
	require.Equal(t, model.InvitationAccepted, got.Invitations[0].Status)
}

func TestAccept_AlreadyMember(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "a@x.com", "u1"))

	err := e.events.Accept(ctx, evt.ID, "u1", "a@x.com")
	require.ErrorIs(t, err, errs.ErrConflict)

	// The pending record must survive the failed accept.
	got, _ := e.events.Get(ctx, evt.ID)
	require.Equal(t, model.InvitationPending, got.Invitations[0].Status)
	require.Equal(t, []string{"u1"}, got.Members)
}

func TestAccept_NoPendingInvitation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	err := e.events.Accept(ctx, evt.ID, "u2", "b@x.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReject_IsNotIdempotent(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
	require.NoError(t, e.events.Reject(ctx, evt.ID, "b@x.com"))

	// Rejecting again finds no pending record.
	err := e.events.Reject(ctx, evt.ID, "b@x.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	got, _ := e.events.Get(ctx, evt.ID)
	require.Equal(t, model.InvitationRejected, got.Invitations[0].Status)
	require.Equal(t, []string{"u1"}, got.Members)
}

func TestRemoveMember_CreatorIsImmutable(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	err := e.events.RemoveMember(ctx, evt.ID, "u1")
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestRemoveMember_NotAMember(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	err := e.events.RemoveMember(ctx, evt.ID, "u2")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRemoveMember_ClearsAcceptedRecordSoReinviteWorks(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.profile(t, "u2", "b@x.com", "Bob")

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
	require.NoError(t, e.events.Accept(ctx, evt.ID, "u2", "b@x.com"))

	require.NoError(t, e.events.RemoveMember(ctx, evt.ID, "u2"))

	got, _ := e.events.Get(ctx, evt.ID)
	require.Equal(t, []string{"u1"}, got.Members)
	require.Empty(t, got.Invitations, "accepted record dropped on removal")

	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
	got, _ = e.events.Get(ctx, evt.ID)
	require.Len(t, got.Invitations, 1)
	require.Equal(t, model.InvitationPending, got.Invitations[0].Status)
}

func TestRemoveMember_ProceedsWhenProfileMissing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	// No profile written for u2: cleanup is skipped, removal still succeeds.

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
	require.NoError(t, e.events.Accept(ctx, evt.ID, "u2", "b@x.com"))

	require.NoError(t, e.events.RemoveMember(ctx, evt.ID, "u2"))

	got, _ := e.events.Get(ctx, evt.ID)
	require.Equal(t, []string{"u1"}, got.Members)
	require.Len(t, got.Invitations, 1)
	require.Equal(t, model.InvitationAccepted, got.Invitations[0].Status, "stale record stays without cleanup")

	// Re-invite still succeeds: a stale accepted record is recycled in place.
	require.NoError(t, e.events.Invite(ctx, evt.ID, "b@x.com", "u1"))
}

func TestNoDuplicatePendingPerEmail_Invariant(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.profile(t, "u2", "b@x.com", "Bob")

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})

	// Drive the record through every transition and recheck after each.
	steps := []func() error{
		func() error { return e.events.Invite(ctx, evt.ID, "b@x.com", "u1") },
		func() error { return e.events.Reject(ctx, evt.ID, "b@x.com") },
		func() error { return e.events.Invite(ctx, evt.ID, "b@x.com", "u1") },
		func() error { return e.events.Accept(ctx, evt.ID, "u2", "b@x.com") },
		func() error { return e.events.RemoveMember(ctx, evt.ID, "u2") },
		func() error { return e.events.Invite(ctx, evt.ID, "b@x.com", "u1") },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		got, err := e.events.Get(ctx, evt.ID)
		require.NoError(t, err)
		pending := 0
		for _, inv := range got.Invitations {
			if inv.Email == "b@x.com" && inv.Status == model.InvitationPending {
				pending++
			}
		}
		require.LessOrEqual(t, pending, 1, "step %d", i)
		require.True(t, got.HasMember(got.CreatedBy), "step %d: creator must stay a member", i)
	}
}

func TestEventDelete_CreatorOnly_NoCascade(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	wl, err := e.wishlists.Create(ctx, CreateWishlistParams{Name: "List", EventID: evt.ID, CreatedBy: "u1"})
	require.NoError(t, err)

	err = e.events.Delete(ctx, evt.ID, "u2")
	require.ErrorIs(t, err, errs.ErrPermissionDenied)

	require.NoError(t, e.events.Delete(ctx, evt.ID, "u1"))
	_, err = e.events.Get(ctx, evt.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	// Orphan-and-ignore: the wishlist survives its event.
	_, err = e.wishlists.Get(ctx, wl.ID)
	require.NoError(t, err)
}

func TestEventUpdate_PartialFields(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})
	date := time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC)

	name := "Holiday Exchange"
	require.NoError(t, e.events.Update(ctx, evt.ID, UpdateEventParams{Name: &name, EventDate: &date}))

	got, _ := e.events.Get(ctx, evt.ID)
	require.Equal(t, "Holiday Exchange", got.Name)
	require.NotNil(t, got.EventDate)
	require.True(t, got.EventDate.Equal(date))

	empty := ""
	err := e.events.Update(ctx, evt.ID, UpdateEventParams{Name: &empty})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestEventWatch_DeliversUpdatesAndDeletion(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	evt, _ := e.events.Create(ctx, CreateEventParams{Name: "Exchange", CreatedBy: "u1"})

	type obs struct {
		name   string
		exists bool
	}
	var seen []obs
	cancel, err := e.events.Watch(ctx, evt.ID, func(got model.Event, exists bool, err error) {
		require.NoError(t, err)
		seen = append(seen, obs{name: got.Name, exists: exists})
	})
	require.NoError(t, err)
	defer cancel()

	name := "Renamed"
	require.NoError(t, e.events.Update(ctx, evt.ID, UpdateEventParams{Name: &name}))
	require.NoError(t, e.events.Delete(ctx, evt.ID, "u1"))

	require.Equal(t, []obs{
		{name: "Exchange", exists: true},
		{name: "Renamed", exists: true},
		{name: "", exists: false},
	}, seen)
}

func TestListForUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	a, _ := e.events.Create(ctx, CreateEventParams{Name: "A", CreatedBy: "u1"})
	_, err := e.events.Create(ctx, CreateEventParams{Name: "B", CreatedBy: "u2"})
	require.NoError(t, err)

	events, err := e.events.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, a.ID, events[0].ID)

	none, err := e.events.ListForUser(ctx, "u3")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestErrSentinelWrapping(t *testing.T) {
	t.Parallel()
	require.True(t, errors.Is(errs.ErrAlreadyInvited, errs.ErrConflict))
}
