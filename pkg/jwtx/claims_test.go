package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "tollgate"}}

	require.NoError(t, c.ValidateIssuer("tollgate"))
	require.NoError(t, c.ValidateIssuer(""))
	require.ErrorIs(t, c.ValidateIssuer("other"), jwtx.ErrIssuer)
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"web", "mobile"}}}

	require.NoError(t, c.ValidateAudience([]string{"web"}))
	require.NoError(t, c.ValidateAudience([]string{"cli", "mobile"}))
	require.NoError(t, c.ValidateAudience(nil))
	require.ErrorIs(t, c.ValidateAudience([]string{"admin"}), jwtx.ErrAudience)
}

func TestValidateExpiry(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	valid := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Second))}}
	require.NoError(t, valid.ValidateExpiry(now))

	// exp == now counts as expired.
	boundary := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now)}}
	require.ErrorIs(t, boundary.ValidateExpiry(now), jwtx.ErrExpired)

	require.ErrorIs(t, (&jwtx.Claims{}).ValidateExpiry(now), jwtx.ErrInvalidClaim)
}

func TestValidateNotBefore(t *testing.T) {
	now := time.Now()

	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{NotBefore: jwt.NewNumericDate(now.Add(time.Minute))}}
	require.ErrorIs(t, c.ValidateNotBefore(now, 0), jwtx.ErrNotYetValid)
	require.NoError(t, c.ValidateNotBefore(now, 2*time.Minute))

	require.NoError(t, (&jwtx.Claims{}).ValidateNotBefore(now, 0))
}
