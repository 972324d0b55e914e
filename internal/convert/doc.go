// Package convert translates between domain entities and store documents.
//
// Optional fields at their zero value are omitted from the encoded document
// entirely: the store rejects null/undefined inside nested structures, so
// absence is expressed by a missing key. Decoding is tolerant of missing keys
// and of numbers/timestamps coming back in backend-specific shapes.
package convert

import (
	"time"

	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
)

// Timestamps are persisted as RFC 3339 strings so that all backends round-trip
// them identically.
const timeLayout = time.RFC3339Nano

// EncodeTime renders a timestamp for persistence.
func EncodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// DecodeTime parses a document timestamp value. Returns the zero time when the
// value is absent or unparseable.
func DecodeTime(v any) time.Time {
	switch ts := v.(type) {
	case string:
		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			return time.Time{}
		}
		return t
	case time.Time:
		return ts
	default:
		return time.Time{}
	}
}

// EncodeUser renders a profile document for users/{uid}.
func EncodeUser(u model.User) store.Document {
	return store.Document{
		"email":       u.Email,
		"displayName": u.DisplayName,
		"createdAt":   EncodeTime(u.CreatedAt),
	}
}

// DecodeUser rebuilds a profile from its document.
func DecodeUser(id string, doc store.Document) model.User {
	return model.User{
		ID:          id,
		Email:       docString(doc, "email"),
		DisplayName: docString(doc, "displayName"),
		CreatedAt:   DecodeTime(doc["createdAt"]),
	}
}

// EncodeEvent renders the full event document.
func EncodeEvent(e model.Event) store.Document {
	doc := store.Document{
		"name":        e.Name,
		"createdBy":   e.CreatedBy,
		"createdAt":   EncodeTime(e.CreatedAt),
		"members":     membersValue(e.Members),
		"invitations": EncodeInvitations(e.Invitations),
	}
	if e.EventDate != nil {
		doc["eventDate"] = EncodeTime(*e.EventDate)
	}
	return doc
}

// EncodeInvitations renders the whole invitations array for a whole-field write.
func EncodeInvitations(invs []model.Invitation) []any {
	out := make([]any, 0, len(invs))
	for _, inv := range invs {
		out = append(out, store.Document{
			"email":     inv.Email,
			"status":    string(inv.Status),
			"invitedBy": inv.InvitedBy,
			"invitedAt": EncodeTime(inv.InvitedAt),
		})
	}
	return out
}

// MembersValue renders the membership list for a whole-field write.
func MembersValue(members []string) []any { return membersValue(members) }

func membersValue(members []string) []any {
	out := make([]any, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

// DecodeEvent rebuilds an event aggregate from its document.
func DecodeEvent(id string, doc store.Document) model.Event {
	e := model.Event{
		ID:        id,
		Name:      docString(doc, "name"),
		CreatedBy: docString(doc, "createdBy"),
		CreatedAt: DecodeTime(doc["createdAt"]),
		Members:   docStringList(doc, "members"),
	}
	if v, ok := doc["eventDate"]; ok {
		if t := DecodeTime(v); !t.IsZero() {
			e.EventDate = &t
		}
	}
	for _, raw := range docList(doc, "invitations") {
		inv, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		e.Invitations = append(e.Invitations, model.Invitation{
			Email:     docString(inv, "email"),
			Status:    model.InvitationStatus(docString(inv, "status")),
			InvitedBy: docString(inv, "invitedBy"),
			InvitedAt: DecodeTime(inv["invitedAt"]),
		})
	}
	return e
}

// EncodeWishlist renders the full wishlist document.
func EncodeWishlist(w model.Wishlist) store.Document {
	return store.Document{
		"name":      w.Name,
		"eventId":   w.EventID,
		"createdBy": w.CreatedBy,
		"createdAt": EncodeTime(w.CreatedAt),
		"items":     EncodeItems(w.Items),
	}
}

// EncodeItems renders the whole item array for a whole-field write, applying
// the absent-stripping rule to every item. Existing items are re-sanitized on
// each write so legacy records cannot carry stray absent-valued keys forward.
func EncodeItems(items []model.WishlistItem) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, EncodeItem(it))
	}
	return out
}

// EncodeItem renders a single item with absent optional fields omitted.
func EncodeItem(it model.WishlistItem) store.Document {
	doc := store.Document{
		"id":   it.ID,
		"name": it.Name,
	}
	if it.Description != "" {
		doc["description"] = it.Description
	}
	if it.Link != "" {
		doc["link"] = it.Link
	}
	if it.Price != "" {
		doc["price"] = it.Price
	}
	if it.IsFavorite {
		doc["isFavorite"] = true
	}
	if it.PurchasedBy != "" {
		doc["purchasedBy"] = it.PurchasedBy
		if it.PurchasedAt != nil {
			doc["purchasedAt"] = EncodeTime(*it.PurchasedAt)
		}
	}
	return doc
}

// DecodeWishlist rebuilds a wishlist from its document.
func DecodeWishlist(id string, doc store.Document) model.Wishlist {
	w := model.Wishlist{
		ID:        id,
		Name:      docString(doc, "name"),
		EventID:   docString(doc, "eventId"),
		CreatedBy: docString(doc, "createdBy"),
		CreatedAt: DecodeTime(doc["createdAt"]),
	}
	for _, raw := range docList(doc, "items") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		it := model.WishlistItem{
			ID:          docString(m, "id"),
			Name:        docString(m, "name"),
			Description: docString(m, "description"),
			Link:        docString(m, "link"),
			Price:       docString(m, "price"),
			PurchasedBy: docString(m, "purchasedBy"),
		}
		if b, ok := m["isFavorite"].(bool); ok {
			it.IsFavorite = b
		}
		if it.PurchasedBy != "" {
			if t := DecodeTime(m["purchasedAt"]); !t.IsZero() {
				it.PurchasedAt = &t
			}
		}
		w.Items = append(w.Items, it)
	}
	return w
}

// EncodeAssignment renders the full assignment document.
func EncodeAssignment(a model.Assignment) store.Document {
	return store.Document{
		"eventId":    a.EventID,
		"wishlistId": a.WishlistID,
		"assignedTo": a.AssignedTo,
		"assignedBy": a.AssignedBy,
		"createdAt":  EncodeTime(a.CreatedAt),
		"status":     string(a.Status),
	}
}

// DecodeAssignment rebuilds an assignment from its document.
func DecodeAssignment(id string, doc store.Document) model.Assignment {
	return model.Assignment{
		ID:         id,
		EventID:    docString(doc, "eventId"),
		WishlistID: docString(doc, "wishlistId"),
		AssignedTo: docString(doc, "assignedTo"),
		AssignedBy: docString(doc, "assignedBy"),
		CreatedAt:  DecodeTime(doc["createdAt"]),
		Status:     model.AssignmentStatus(docString(doc, "status")),
	}
}

func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docList(doc map[string]any, key string) []any {
	l, _ := doc[key].([]any)
	return l
}

func docStringList(doc map[string]any, key string) []string {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	switch arr := raw.(type) {
	case []string:
		out := make([]string, len(arr))
		copy(out, arr)
		return out
	case []any:
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
