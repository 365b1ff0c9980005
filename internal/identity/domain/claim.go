package domain

import "slices"

// Well-known claim types.
const (
	ClaimSubject = "sub"
	ClaimAppID   = "app_id"
	ClaimTokenID = "jti"
	ClaimName    = "name"
	ClaimEmail   = "email"
	ClaimRole    = "role"

	// ClaimIdentityProvider names the provider behind a transient external
	// principal.
	ClaimIdentityProvider = "idp"
)

// reservedClaimTypes are only ever set by the issuer. Caller-supplied claims
// of these types are never honoured.
var reservedClaimTypes = []string{
	ClaimSubject,
	ClaimAppID,
	ClaimTokenID,
	ClaimName,
	ClaimEmail,
	ClaimRole,
	ClaimIdentityProvider,
}

// ReservedClaimTypes returns a copy of the claim types callers may not set.
func ReservedClaimTypes() []string { return slices.Clone(reservedClaimTypes) }

func IsReservedClaimType(t string) bool { return slices.Contains(reservedClaimTypes, t) }

// DefaultAppID scopes tokens when the caller names no application.
const DefaultAppID = "Default"

// Claim is one (type, value) pair. A principal may carry several claims of
// the same type, e.g. one per role.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is the authenticated subject a token is minted for.
type Principal struct {
	SubjectID string
	AppID     string
	UserName  string
	Email     string
	Claims    []Claim
}

// Values returns every value of claim type t in order.
func (p Principal) Values(t string) []string {
	var out []string
	for _, c := range p.Claims {
		if c.Type == t {
			out = append(out, c.Value)
		}
	}
	return out
}

// Value returns the first value of claim type t.
func (p Principal) Value(t string) (string, bool) {
	for _, c := range p.Claims {
		if c.Type == t {
			return c.Value, true
		}
	}
	return "", false
}

func (p Principal) Roles() []string { return p.Values(ClaimRole) }

func (p Principal) HasClaim(c Claim) bool { return slices.Contains(p.Claims, c) }

// TokenID is the jti claim.
func (p Principal) TokenID() string {
	v, _ := p.Value(ClaimTokenID)
	return v
}
