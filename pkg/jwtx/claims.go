package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates clock drift between the node that minted a token
// and the node verifying it.
const DefaultLeeway = 5 * time.Minute

// Claims is the payload of every token this module signs.
type Claims struct {
	jwt.RegisteredClaims

	// AppID scopes the token to one client application.
	AppID string `json:"app_id,omitempty"`

	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"role,omitempty"`

	// Extra holds every claim type without a dedicated field. One type may
	// carry several values.
	Extra map[string][]string `json:"ext,omitempty"`

	// Purpose is empty for access tokens. Short-lived tickets set it so
	// that they can never be replayed as access tokens.
	Purpose string `json:"purpose,omitempty"`

	// Refreshable records whether the sign-in that produced a ticket asked
	// for a refresh token.
	Refreshable bool `json:"rfr,omitempty"`
}

// ValidateIssuer checks iss when expected is non-empty.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience requires at least one of expected to be present in aud.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry fails once now has reached exp. Expiry carries no leeway so
// that a client comparing ExpireAt against its own clock agrees with us.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}

// ValidateNotBefore rejects tokens minted in the future beyond leeway.
func (c *Claims) ValidateNotBefore(now time.Time, leeway time.Duration) error {
	if c.NotBefore != nil && now.Add(leeway).Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	if c.IssuedAt != nil && now.Add(leeway).Before(c.IssuedAt.Time) {
		return ErrNotYetValid
	}
	return nil
}
