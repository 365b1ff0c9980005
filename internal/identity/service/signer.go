package service

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL applies when TokenSignerOptions.AccessTTL is zero.
	DefaultAccessTTL = 72 * time.Hour

	// TwoFactorTicketTTL bounds the gap between the password step and the
	// second factor.
	TwoFactorTicketTTL = 5 * time.Minute

	purposeTwoFactor = "2fa"
)

type TokenSignerOptions struct {
	Issuer    string
	Audience  string
	Secret    []byte
	AccessTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// TokenSigner mints and verifies HS256 access tokens.
type TokenSigner struct {
	opts     TokenSignerOptions
	signer   *jwtx.HS256Signer
	verifier *jwtx.HS256Verifier
}

func NewTokenSigner(opts TokenSignerOptions) (*TokenSigner, error) {
	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is empty", ErrMisconfigured)
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	signer, err := jwtx.NewHS256Signer(opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	var audience []string
	if opts.Audience != "" {
		audience = []string{opts.Audience}
	}
	verifier, err := jwtx.NewHS256Verifier(opts.Secret, jwtx.VerifyOptions{
		Issuer:   opts.Issuer,
		Audience: audience,
		Leeway:   jwtx.DefaultLeeway,
		Now:      opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	return &TokenSigner{opts: opts, signer: signer, verifier: verifier}, nil
}

// Issue signs p. ExpireAt is truncated to whole seconds to match exp.
func (s *TokenSigner) Issue(p domain.Principal) (domain.AccessToken, error) {
	now := s.opts.Now().Truncate(time.Second)
	exp := now.Add(s.opts.AccessTTL)

	claims := s.toClaims(p)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)

	token, err := s.signer.Sign(claims)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.AccessToken{
		AppID:     claims.AppID,
		SubjectID: p.SubjectID,
		Token:     token,
		ExpireAt:  exp,
	}, nil
}

// Verify returns the principal carried by token. allowExpired is for the
// refresh flow only. Every failure is ErrTokenInvalid; the wrapped cause is
// for logs.
func (s *TokenSigner) Verify(token string, allowExpired bool) (domain.Principal, error) {
	claims, err := s.verifier.Verify(token, allowExpired)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Purpose != "" {
		return domain.Principal{}, fmt.Errorf("%w: token has purpose %q", ErrTokenInvalid, claims.Purpose)
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return fromClaims(claims), nil
}

// IssueTwoFactorTicket binds a pending second factor to userID. The ticket is
// signed with the access-token key but can never pass Verify.
func (s *TokenSigner) IssueTwoFactorTicket(userID, appID string, refreshable bool) (string, error) {
	now := s.opts.Now().Truncate(time.Second)
	claims := jwtx.Claims{
		RegisteredClaims: s.registered(userID, uuid.NewString()),
		AppID:            appID,
		Purpose:          purposeTwoFactor,
		Refreshable:      refreshable,
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(TwoFactorTicketTTL))
	return s.signer.Sign(claims)
}

// TwoFactorTicket is the verified content of a ticket.
type TwoFactorTicket struct {
	UserID      string
	AppID       string
	Refreshable bool
}

func (s *TokenSigner) VerifyTwoFactorTicket(ticket string) (TwoFactorTicket, error) {
	claims, err := s.verifier.Verify(ticket, false)
	if err != nil {
		return TwoFactorTicket{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Purpose != purposeTwoFactor || claims.Subject == "" {
		return TwoFactorTicket{}, fmt.Errorf("%w: not a two-factor ticket", ErrTokenInvalid)
	}
	return TwoFactorTicket{
		UserID:      claims.Subject,
		AppID:       claims.AppID,
		Refreshable: claims.Refreshable,
	}, nil
}

func (s *TokenSigner) registered(subject, id string) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Issuer:  s.opts.Issuer,
		Subject: subject,
		ID:      id,
	}
	if s.opts.Audience != "" {
		rc.Audience = jwt.ClaimStrings{s.opts.Audience}
	}
	return rc
}

// toClaims maps well-known claim types onto dedicated JWT fields. A second
// value for a single-valued type, and every other type, lands in Extra.
func (s *TokenSigner) toClaims(p domain.Principal) jwtx.Claims {
	appID := p.AppID
	if appID == "" {
		appID = domain.DefaultAppID
	}
	tokenID := p.TokenID()
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	c := jwtx.Claims{
		RegisteredClaims: s.registered(p.SubjectID, tokenID),
		AppID:            appID,
		Name:             p.UserName,
		Email:            p.Email,
	}

	dedicated := map[string]string{
		domain.ClaimSubject: p.SubjectID,
		domain.ClaimAppID:   appID,
		domain.ClaimTokenID: tokenID,
		domain.ClaimName:    p.UserName,
		domain.ClaimEmail:   p.Email,
	}
	for _, cl := range p.Claims {
		if cl.Type == domain.ClaimRole {
			if !slices.Contains(c.Roles, cl.Value) {
				c.Roles = append(c.Roles, cl.Value)
			}
			continue
		}
		if v, ok := dedicated[cl.Type]; ok && v == cl.Value {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string][]string)
		}
		if !slices.Contains(c.Extra[cl.Type], cl.Value) {
			c.Extra[cl.Type] = append(c.Extra[cl.Type], cl.Value)
		}
	}
	return c
}

func fromClaims(c *jwtx.Claims) domain.Principal {
	p := domain.Principal{
		SubjectID: c.Subject,
		AppID:     c.AppID,
		UserName:  c.Name,
		Email:     c.Email,
	}
	if p.AppID == "" {
		p.AppID = domain.DefaultAppID
	}

	p.Claims = append(p.Claims,
		domain.Claim{Type: domain.ClaimAppID, Value: p.AppID},
		domain.Claim{Type: domain.ClaimSubject, Value: c.Subject},
	)
	if c.ID != "" {
		p.Claims = append(p.Claims, domain.Claim{Type: domain.ClaimTokenID, Value: c.ID})
	}
	if c.Name != "" {
		p.Claims = append(p.Claims, domain.Claim{Type: domain.ClaimName, Value: c.Name})
	}
	if c.Email != "" {
		p.Claims = append(p.Claims, domain.Claim{Type: domain.ClaimEmail, Value: c.Email})
	}
	for _, r := range c.Roles {
		p.Claims = append(p.Claims, domain.Claim{Type: domain.ClaimRole, Value: r})
	}

	types := make([]string, 0, len(c.Extra))
	for t := range c.Extra {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		for _, v := range c.Extra[t] {
			p.Claims = append(p.Claims, domain.Claim{Type: t, Value: v})
		}
	}
	return p
}
