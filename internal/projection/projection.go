// Package projection derives filtered views from collection subscriptions for
// external consumers (UI, notification delivery).
//
// The pending-invitations view cannot be expressed as a store query: the
// store offers no predicate over nested object arrays, so the projection
// subscribes to the entire events collection and re-scans every document's
// invitations array on each change. Cost is O(all events) per update, a known
// scalability ceiling at larger event counts.
package projection

import (
	"context"
	"sort"

	"github.com/giftcircle/giftcircle/internal/convert"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
)

// Invite is the client-side join of an event and one of its invitation
// records, as consumed by the invitation inbox.
type Invite struct {
	EventID    string
	EventName  string
	Invitation model.Invitation
}

// EventsFunc receives the re-derived events-for-user view.
type EventsFunc func(events []model.Event, err error)

// InvitesFunc receives the re-derived pending-invitations view.
type InvitesFunc func(invites []Invite, err error)

// Projector exposes the live query views, each in a pull and a push form.
type Projector struct {
	store store.Store
}

// New constructs a Projector.
func New(st store.Store) *Projector { return &Projector{store: st} }

// EventsForUser returns every event whose membership contains the user.
func (p *Projector) EventsForUser(ctx context.Context, userID string) ([]model.Event, error) {
	snaps, err := p.store.Query(ctx, store.CollectionEvents,
		store.Filter{Field: "members", Op: store.OpContains, Value: userID})
	if err != nil {
		return nil, err
	}
	return decodeEvents(snaps), nil
}

// WatchEventsForUser pushes the view after every change. On a terminal error
// the callback receives an empty set plus the error, never a silent hang.
func (p *Projector) WatchEventsForUser(ctx context.Context, userID string, fn EventsFunc) (store.CancelFunc, error) {
	filters := []store.Filter{{Field: "members", Op: store.OpContains, Value: userID}}
	return p.store.Subscribe(ctx, store.CollectionEvents, filters, func(snaps []store.Snapshot, err error) {
		if err != nil {
			fn([]model.Event{}, err)
			return
		}
		fn(decodeEvents(snaps), nil)
	})
}

// PendingInvitationsForEmail scans every event for a pending record matching
// the email.
func (p *Projector) PendingInvitationsForEmail(ctx context.Context, email string) ([]Invite, error) {
	snaps, err := p.store.Query(ctx, store.CollectionEvents)
	if err != nil {
		return nil, err
	}
	return pendingInvites(snaps, email), nil
}

// WatchPendingInvitationsForEmail recomputes the full matching set on every
// change to the events collection.
func (p *Projector) WatchPendingInvitationsForEmail(ctx context.Context, email string, fn InvitesFunc) (store.CancelFunc, error) {
	return p.store.Subscribe(ctx, store.CollectionEvents, nil, func(snaps []store.Snapshot, err error) {
		if err != nil {
			fn([]Invite{}, err)
			return
		}
		fn(pendingInvites(snaps, email), nil)
	})
}

func pendingInvites(snaps []store.Snapshot, email string) []Invite {
	invites := []Invite{}
	for _, snap := range snaps {
		e := convert.DecodeEvent(snap.ID, snap.Data)
		for _, inv := range e.Invitations {
			if inv.Email == email && inv.Status == model.InvitationPending {
				invites = append(invites, Invite{EventID: e.ID, EventName: e.Name, Invitation: inv})
			}
		}
	}
	sort.Slice(invites, func(i, j int) bool {
		if invites[i].Invitation.InvitedAt.Equal(invites[j].Invitation.InvitedAt) {
			return invites[i].EventID < invites[j].EventID
		}
		return invites[i].Invitation.InvitedAt.Before(invites[j].Invitation.InvitedAt)
	})
	return invites
}

func decodeEvents(snaps []store.Snapshot) []model.Event {
	events := make([]model.Event, 0, len(snaps))
	for _, snap := range snaps {
		events = append(events, convert.DecodeEvent(snap.ID, snap.Data))
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events
}
