package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptySecret = errors.New("jwtx: signing secret is empty")
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// HS256Signer signs claims with a shared HMAC-SHA256 secret.
type HS256Signer struct {
	key []byte
}

func NewHS256Signer(secret []byte) (*HS256Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &HS256Signer{key: secret}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (s *HS256Signer) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// VerifyOptions are the expectations every verified token must meet.
type VerifyOptions struct {
	Issuer   string
	Audience []string

	// Leeway applies to nbf and iat.
	Leeway time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// HS256Verifier checks signature, algorithm, issuer, audience and lifetime.
type HS256Verifier struct {
	key    []byte
	opts   VerifyOptions
	parser *jwt.Parser
}

func NewHS256Verifier(secret []byte, opts VerifyOptions) (*HS256Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HS256Verifier{
		key:  secret,
		opts: opts,
		// Lifetime checks run below so that expired tokens can still be
		// read when the caller allows it.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Verify returns the claims of token. With allowExpired an expired but
// otherwise valid token is accepted; signature, algorithm, issuer and
// audience are enforced regardless.
func (v *HS256Verifier) Verify(token string, allowExpired bool) (*Claims, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSig, err)
		default:
			return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidSig
	}

	now := v.opts.Now()

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateNotBefore(now, v.opts.Leeway); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(now); err != nil {
		if !allowExpired || !errors.Is(err, ErrExpired) {
			return nil, err
		}
	}

	return claims, nil
}
