// Package identity verifies identity-provider tokens and yields the calling
// principal. Authentication itself is delegated to the external provider; this
// package only checks the HS256 signature and extracts profile claims.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giftcircle/giftcircle/internal/errs"
)

// Principal is the authenticated caller as asserted by the identity provider.
type Principal struct {
	ID          string
	Email       string
	DisplayName string
}

type claims struct {
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier validates provider-issued tokens with a shared HS256 key.
type Verifier struct {
	key []byte
}

// NewVerifier constructs a Verifier; the key must match the provider's.
func NewVerifier(key []byte) *Verifier { return &Verifier{key: key} }

// Verify parses the token and returns the principal it asserts.
// The subject claim carries the provider-issued user id.
func (v *Verifier) Verify(token string) (Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: invalid token", errs.ErrPermissionDenied)
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("%w: token missing subject", errs.ErrPermissionDenied)
	}
	return Principal{ID: c.Subject, Email: c.Email, DisplayName: c.DisplayName}, nil
}

// IssueForTest mints a token the way the provider would. Test helper only.
func IssueForTest(key []byte, p Principal, ttl time.Duration) (string, error) {
	if p.ID == "" {
		return "", errors.New("empty principal id")
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:       p.Email,
		DisplayName: p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(key)
}
