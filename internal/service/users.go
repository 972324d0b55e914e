// Package service contains the application engines: membership and
// invitations, wishlist mutations, assignments and user profiles.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/giftcircle/giftcircle/internal/convert"
	"github.com/giftcircle/giftcircle/internal/errs"
	"github.com/giftcircle/giftcircle/internal/identity"
	"github.com/giftcircle/giftcircle/internal/model"
	"github.com/giftcircle/giftcircle/internal/store"
)

// UserService maintains the denormalized profile copies under users/{uid}.
type UserService interface {
	// EnsureProfile creates the profile lazily on first sign-in if absent.
	EnsureProfile(ctx context.Context, p identity.Principal) (model.User, error)
	// Get loads a profile. Permission-denied reads degrade to (nil, nil):
	// "no profile" is a recoverable condition, not a fatal error.
	Get(ctx context.Context, id string) (*model.User, error)
}

type UserServiceImpl struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService constructs UserService.
func NewUserService(st store.Store, logger *zap.Logger) *UserServiceImpl {
	return &UserServiceImpl{store: st, logger: logger, now: time.Now}
}

var _ UserService = (*UserServiceImpl)(nil)

// EnsureProfile returns the stored profile, writing it first if missing.
func (s *UserServiceImpl) EnsureProfile(ctx context.Context, p identity.Principal) (model.User, error) {
	if p.ID == "" {
		return model.User{}, fmt.Errorf("%w: empty principal id", errs.ErrValidation)
	}
	doc, err := s.store.Get(ctx, store.CollectionUsers, p.ID)
	switch {
	case err == nil:
		return convert.DecodeUser(p.ID, doc), nil
	case errors.Is(err, errs.ErrPermissionDenied):
		// Degrade: serve the principal's own claims without persisting.
		s.logger.Warn("profile read denied, serving claims only", zap.String("user_id", p.ID))
		return model.User{ID: p.ID, Email: p.Email, DisplayName: p.DisplayName}, nil
	case errors.Is(err, errs.ErrNotFound):
		u := model.User{ID: p.ID, Email: p.Email, DisplayName: p.DisplayName, CreatedAt: s.now()}
		if err := s.store.Put(ctx, store.CollectionUsers, p.ID, convert.EncodeUser(u)); err != nil {
			return model.User{}, fmt.Errorf("create profile: %w", err)
		}
		return u, nil
	default:
		return model.User{}, fmt.Errorf("get profile: %w", err)
	}
}

// Get loads one profile by id.
func (s *UserServiceImpl) Get(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	doc, err := s.store.Get(ctx, store.CollectionUsers, id)
	if errors.Is(err, errs.ErrPermissionDenied) {
		s.logger.Warn("profile read denied", zap.String("user_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := convert.DecodeUser(id, doc)
	return &u, nil
}
