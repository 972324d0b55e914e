package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/convert"
	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
)

// CreateWishlistParams carries the fields required for a new wishlist.
type CreateWishlistParams struct {
	Name      string
	EventID   string
	CreatedBy string
}

// WishlistFunc receives single-wishlist updates; exists is false once the
// wishlist has been deleted.
type WishlistFunc func(w model.Wishlist, exists bool, err error)

// WishlistsFunc receives the re-derived wishlist set for one event.
type WishlistsFunc func(lists []model.Wishlist, err error)

// WishlistService owns the wishlists collection and its embedded item list.
// Every item operation is fetch -> recompute array -> whole-field write-back;
// two concurrent writers can therefore lose one writer's change (last write
// wins on the whole array).
type WishlistService interface {
	Create(ctx context.Context, params CreateWishlistParams) (model.Wishlist, error)
	Get(ctx context.Context, id string) (model.Wishlist, error)
	ListForEvent(ctx context.Context, eventID string) ([]model.Wishlist, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	// AddItem sanitizes and appends a new item with a generated id.
	AddItem(ctx context.Context, wishlistID string, item model.WishlistItem) (model.WishlistItem, error)
	// UpdateItem merges partial fields over the item.
	UpdateItem(ctx context.Context, wishlistID, itemID string, upd model.ItemUpdate) error
	DeleteItem(ctx context.Context, wishlistID, itemID string) error
	// Reorder replaces the item array with the caller-supplied permutation.
	// No validation that it is a true permutation: the caller's array wins.
	Reorder(ctx context.Context, wishlistID string, items []model.WishlistItem) error
	// MarkPurchased sets purchasedBy and purchasedAt as a pair and mirrors the
	// wishlist's assignment to purchased, best-effort.
	MarkPurchased(ctx context.Context, wishlistID, itemID, purchasedBy string) error
	// UnmarkPurchased clears the pair and mirrors the assignment to pending.
	UnmarkPurchased(ctx context.Context, wishlistID, itemID string) error
	Watch(ctx context.Context, id string, fn WishlistFunc) (store.CancelFunc, error)
	SubscribeForEvent(ctx context.Context, eventID string, fn WishlistsFunc) (store.CancelFunc, error)
}

type WishlistServiceImpl struct {
	store       store.Store
	assignments AssignmentService
	logger      *zap.Logger
	now         func() time.Time
}

// NewWishlistService constructs WishlistService. assignments may be nil,
// which disables purchase-state mirroring.
func NewWishlistService(st store.Store, assignments AssignmentService, logger *zap.Logger) *WishlistServiceImpl {
	return &WishlistServiceImpl{store: st, assignments: assignments, logger: logger, now: time.Now}
}

var _ WishlistService = (*WishlistServiceImpl)(nil)

// Create persists a new empty wishlist.
func (s *WishlistServiceImpl) Create(ctx context.Context, params CreateWishlistParams) (model.Wishlist, error) {
	if params.Name == "" {
		return model.Wishlist{}, fmt.Errorf("%w: empty wishlist name", errs.ErrValidation)
	}
	if params.EventID == "" || params.CreatedBy == "" {
		return model.Wishlist{}, fmt.Errorf("%w: empty event or creator id", errs.ErrValidation)
	}
	w := model.Wishlist{
		Name:      params.Name,
		EventID:   params.EventID,
		CreatedBy: params.CreatedBy,
		CreatedAt: s.now(),
	}
	id, err := s.store.Create(ctx, store.CollectionWishlists, convert.EncodeWishlist(w))
	if err != nil {
		return model.Wishlist{}, fmt.Errorf("create wishlist: %w", err)
	}
	w.ID = id
	return w, nil
}

// Get loads one wishlist.
func (s *WishlistServiceImpl) Get(ctx context.Context, id string) (model.Wishlist, error) {
	doc, err := s.store.Get(ctx, store.CollectionWishlists, id)
	if err != nil {
		return model.Wishlist{}, fmt.Errorf("get wishlist: %w", err)
	}
	return convert.DecodeWishlist(id, doc), nil
}

// ListForEvent returns every wishlist belonging to the event.
func (s *WishlistServiceImpl) ListForEvent(ctx context.Context, eventID string) ([]model.Wishlist, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: empty event id", errs.ErrValidation)
	}
	snaps, err := s.store.Query(ctx, store.CollectionWishlists,
		store.Filter{Field: "eventId", Op: store.OpEqual, Value: eventID})
	if err != nil {
		return nil, fmt.Errorf("query wishlists: %w", err)
	}
	lists := make([]model.Wishlist, 0, len(snaps))
	for _, snap := range snaps {
		lists = append(lists, convert.DecodeWishlist(snap.ID, snap.Data))
	}
	return lists, nil
}

// Rename overwrites the wishlist name.
func (s *WishlistServiceImpl) Rename(ctx context.Context, id, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty wishlist name", errs.ErrValidation)
	}
	if err := s.store.Update(ctx, store.CollectionWishlists, id, store.Document{"name": name}); err != nil {
		return fmt.Errorf("rename wishlist: %w", err)
	}
	return nil
}

// Delete removes the wishlist.
func (s *WishlistServiceImpl) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, store.CollectionWishlists, id); err != nil {
		return fmt.Errorf("delete wishlist: %w", err)
	}
	return nil
}

// AddItem appends a sanitized item under a generated id and writes the whole
// array back, re-sanitizing every existing item on the way.
func (s *WishlistServiceImpl) AddItem(ctx context.Context, wishlistID string, item model.WishlistItem) (model.WishlistItem, error) {
	if item.Name == "" {
		return model.WishlistItem{}, fmt.Errorf("%w: empty item name", errs.ErrValidation)
	}
	w, err := s.Get(ctx, wishlistID)
	if err != nil {
		return model.WishlistItem{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.WishlistItem{}, fmt.Errorf("generate item id: %w", err)
	}
	item.ID = id.String()
	item.PurchasedBy = ""
	item.PurchasedAt = nil
	w.Items = append(w.Items, item)
	if err := s.writeItems(ctx, wishlistID, w.Items); err != nil {
		return model.WishlistItem{}, err
	}
	return item, nil
}

// UpdateItem merges the partial change over the located item. A pointer to
// the zero value clears the field: the key is stripped on write.
func (s *WishlistServiceImpl) UpdateItem(ctx context.Context, wishlistID, itemID string, upd model.ItemUpdate) error {
	if upd.Name != nil && *upd.Name == "" {
		return fmt.Errorf("%w: empty item name", errs.ErrValidation)
	}
	w, idx, err := s.locate(ctx, wishlistID, itemID)
	if err != nil {
		return err
	}
	it := &w.Items[idx]
	if upd.Name != nil {
		it.Name = *upd.Name
	}
	if upd.Description != nil {
		it.Description = *upd.Description
	}
	if upd.Link != nil {
		it.Link = *upd.Link
	}
	if upd.Price != nil {
		it.Price = *upd.Price
	}
	if upd.IsFavorite != nil {
		it.IsFavorite = *upd.IsFavorite
	}
	return s.writeItems(ctx, wishlistID, w.Items)
}

// DeleteItem filters the item out by id.
func (s *WishlistServiceImpl) DeleteItem(ctx context.Context, wishlistID, itemID string) error {
	w, idx, err := s.locate(ctx, wishlistID, itemID)
	if err != nil {
		return err
	}
	items := append(w.Items[:idx:idx], w.Items[idx+1:]...)
	return s.writeItems(ctx, wishlistID, items)
}

// Reorder replaces the array with the supplied one, whatever it contains.
func (s *WishlistServiceImpl) Reorder(ctx context.Context, wishlistID string, items []model.WishlistItem) error {
	if _, err := s.Get(ctx, wishlistID); err != nil {
		return err
	}
	return s.writeItems(ctx, wishlistID, items)
}

// MarkPurchased sets the purchase pair on the item.
func (s *WishlistServiceImpl) MarkPurchased(ctx context.Context, wishlistID, itemID, purchasedBy string) error {
	if purchasedBy == "" {
		return fmt.Errorf("%w: empty purchaser id", errs.ErrValidation)
	}
	w, idx, err := s.locate(ctx, wishlistID, itemID)
	if err != nil {
		return err
	}
	at := s.now()
	w.Items[idx].PurchasedBy = purchasedBy
	w.Items[idx].PurchasedAt = &at
	if err := s.writeItems(ctx, wishlistID, w.Items); err != nil {
		return err
	}
	s.mirrorAssignment(ctx, w.EventID, wishlistID, model.AssignmentPurchased)
	return nil
}

// UnmarkPurchased clears the purchase pair on the item.
func (s *WishlistServiceImpl) UnmarkPurchased(ctx context.Context, wishlistID, itemID string) error {
	w, idx, err := s.locate(ctx, wishlistID, itemID)
	if err != nil {
		return err
	}
	w.Items[idx].PurchasedBy = ""
	w.Items[idx].PurchasedAt = nil
	if err := s.writeItems(ctx, wishlistID, w.Items); err != nil {
		return err
	}
	s.mirrorAssignment(ctx, w.EventID, wishlistID, model.AssignmentPending)
	return nil
}

// Watch subscribes to one wishlist document.
func (s *WishlistServiceImpl) Watch(ctx context.Context, id string, fn WishlistFunc) (store.CancelFunc, error) {
	return s.store.Watch(ctx, store.CollectionWishlists, id, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(model.Wishlist{}, false, err)
			return
		}
		if snap.Data == nil {
			fn(model.Wishlist{}, false, nil)
			return
		}
		fn(convert.DecodeWishlist(snap.ID, snap.Data), true, nil)
	})
}

// SubscribeForEvent delivers the event's wishlist set after every change.
func (s *WishlistServiceImpl) SubscribeForEvent(ctx context.Context, eventID string, fn WishlistsFunc) (store.CancelFunc, error) {
	filters := []store.Filter{{Field: "eventId", Op: store.OpEqual, Value: eventID}}
	return s.store.Subscribe(ctx, store.CollectionWishlists, filters, func(snaps []store.Snapshot, err error) {
		if err != nil {
			fn([]model.Wishlist{}, err)
			return
		}
		lists := make([]model.Wishlist, 0, len(snaps))
		for _, snap := range snaps {
			lists = append(lists, convert.DecodeWishlist(snap.ID, snap.Data))
		}
		fn(lists, nil)
	})
}

// mirrorAssignment reflects the purchase toggle onto the wishlist's
// assignment. Failures are logged and swallowed: the item mutation already
// succeeded and must not be rolled back.
func (s *WishlistServiceImpl) mirrorAssignment(ctx context.Context, eventID, wishlistID string, status model.AssignmentStatus) {
	if s.assignments == nil {
		return
	}
	a, err := s.assignments.GetForWishlist(ctx, eventID, wishlistID)
	if err != nil {
		s.logger.Warn("assignment lookup failed during purchase mirror",
			zap.String("wishlist_id", wishlistID), zap.Error(err))
		return
	}
	if a == nil {
		return
	}
	if err := s.assignments.UpdateStatus(ctx, a.ID, status); err != nil {
		s.logger.Warn("assignment status mirror failed",
			zap.String("assignment_id", a.ID), zap.Error(err))
	}
}

func (s *WishlistServiceImpl) locate(ctx context.Context, wishlistID, itemID string) (model.Wishlist, int, error) {
	w, err := s.Get(ctx, wishlistID)
	if err != nil {
		return model.Wishlist{}, 0, err
	}
	for i, it := range w.Items {
		if it.ID == itemID {
			return w, i, nil
		}
	}
	return model.Wishlist{}, 0, fmt.Errorf("%w: item %s", errs.ErrNotFound, itemID)
}

func (s *WishlistServiceImpl) writeItems(ctx context.Context, wishlistID string, items []model.WishlistItem) error {
	err := s.store.Update(ctx, store.CollectionWishlists, wishlistID, store.Document{
		"items": convert.EncodeItems(items),
	})
	if err != nil {
		return fmt.Errorf("write items: %w", err)
	}
	return nil
}
