// Package model defines domain entities used by services, projections and stores.
package model

import "time"

// InvitationStatus is the lifecycle state of a single invitation record.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// AssignmentStatus tracks whether the assignee has purchased from the wishlist.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentPurchased AssignmentStatus = "purchased"
)

// User is the denormalized profile copy of an identity-provider principal,
// persisted under users/{uid} lazily on first sign-in.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Invitation is one embedded invitation record inside an Event.
// A non-pending record is recycled in place on re-invite rather than duplicated.
type Invitation struct {
	Email     string
	Status    InvitationStatus
	InvitedBy string
	InvitedAt time.Time
}

// Event is the root aggregate for a gift-exchange occasion.
//
// Invariants: CreatedBy is always present in Members and never removable;
// Members holds no duplicates; at most one pending invitation per email.
type Event struct {
	ID          string
	Name        string
	CreatedBy   string
	CreatedAt   time.Time
	EventDate   *time.Time
	Members     []string
	Invitations []Invitation
}

// HasMember reports whether userID is in the membership list.
func (e Event) HasMember(userID string) bool {
	for _, m := range e.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// WishlistItem is an embedded value inside a Wishlist. Optional fields left at
// their zero value are omitted entirely when persisted, never stored as null.
// Presence of PurchasedBy is the sole "purchased" flag; PurchasedAt never
// appears without it.
type WishlistItem struct {
	ID          string
	Name        string
	Description string
	Link        string
	Price       string
	IsFavorite  bool
	PurchasedBy string
	PurchasedAt *time.Time
}

// Purchased reports whether the item has been bought.
func (i WishlistItem) Purchased() bool { return i.PurchasedBy != "" }

// Wishlist belongs to exactly one Event. Item order is the member-provided
// permutation and is preserved exactly as stored.
type Wishlist struct {
	ID        string
	Name      string
	EventID   string
	CreatedBy string
	CreatedAt time.Time
	Items     []WishlistItem
}

// ItemUpdate is a partial wishlist item change. Nil pointer means "leave the
// field unchanged"; a pointer to the zero value clears the field (the key is
// stripped on write).
type ItemUpdate struct {
	Name        *string
	Description *string
	Link        *string
	Price       *string
	IsFavorite  *bool
}

// Assignment links one Wishlist to one assignee within one Event. At most one
// assignment is expected per (event, wishlist, assignee) triple; the check is
// query-then-insert and therefore race-prone without store transactions.
type Assignment struct {
	ID         string
	EventID    string
	WishlistID string
	AssignedTo string
	AssignedBy string
	CreatedAt  time.Time
	Status     AssignmentStatus
}
