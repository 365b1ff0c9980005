package service

import (
	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/google/uuid"
)

// AssembleClaims builds the claim set a token is minted from: app id, a fresh
// token id, subject, name, email, one role claim per role, then every claim
// from sources. Exact (type, value) duplicates are dropped, keeping the first.
//
// Claims already on base are treated as the first source.
func AssembleClaims(base domain.Principal, roles []string, sources ...[]domain.Claim) domain.Principal {
	p := base
	if p.AppID == "" {
		p.AppID = domain.DefaultAppID
	}

	out := make([]domain.Claim, 0, 5+len(roles)+len(base.Claims))
	seen := make(map[domain.Claim]struct{}, cap(out))
	add := func(c domain.Claim) {
		if c.Type == "" {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	add(domain.Claim{Type: domain.ClaimAppID, Value: p.AppID})
	add(domain.Claim{Type: domain.ClaimTokenID, Value: uuid.NewString()})
	add(domain.Claim{Type: domain.ClaimSubject, Value: p.SubjectID})
	if p.UserName != "" {
		add(domain.Claim{Type: domain.ClaimName, Value: p.UserName})
	}
	if p.Email != "" {
		add(domain.Claim{Type: domain.ClaimEmail, Value: p.Email})
	}
	for _, r := range roles {
		add(domain.Claim{Type: domain.ClaimRole, Value: r})
	}
	for _, c := range base.Claims {
		add(c)
	}
	for _, src := range sources {
		for _, c := range src {
			add(c)
		}
	}

	p.Claims = out
	return p
}
