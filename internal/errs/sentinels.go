// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across store/service layers.
var (
	// ErrNotFound indicates the requested entity or embedded record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or state violation (already a member,
	// assignment already exists, creator removal).
	ErrConflict = errors.New("conflict")

	// ErrAlreadyInvited indicates a pending invitation already exists for the email.
	// Matches ErrConflict via errors.Is.
	ErrAlreadyInvited = fmt.Errorf("already invited: %w", ErrConflict)

	// ErrPermissionDenied indicates the store's authorization layer rejected the call.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation indicates a malformed argument (empty name, missing id).
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited indicates temporary invite lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
