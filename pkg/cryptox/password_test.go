package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher("pepper")

	for _, pw := range []string{"password123", "P@ssw0rd!#$%^&*()", strings.Repeat("a", 100), "", "   spaces   "} {
		encoded, err := h.Hash(pw)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=19456,t=2,p=1$"))
		require.NoError(t, h.Verify(pw, encoded))
	}
}

func TestHasherUniqueSalts(t *testing.T) {
	h := NewHasher("")

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NoError(t, h.Verify("same", a))
	require.NoError(t, h.Verify("same", b))
}

func TestHasherMismatch(t *testing.T) {
	h := NewHasher("pepper")
	encoded, err := h.Hash("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{"wrong", "Correct-Password", "correct-password ", ""} {
		require.ErrorIs(t, h.Verify(wrong, encoded), ErrPasswordMismatch)
	}
}

func TestHasherPepperIsApplied(t *testing.T) {
	encoded, err := NewHasher("pepper-a").Hash("password")
	require.NoError(t, err)

	require.ErrorIs(t, NewHasher("pepper-b").Verify("password", encoded), ErrPasswordMismatch)
}

func TestHasherMalformed(t *testing.T) {
	h := NewHasher("")
	for name, encoded := range map[string]string{
		"empty":           "",
		"wrong algorithm": "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"missing parts":   "$argon2id$v=19$m=19456",
		"bad parameters":  "$argon2id$v=19$invalid$c2FsdA$aGFzaA",
		"bad salt":        "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA",
		"bad hash":        "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!",
		"wrong version":   "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, h.Verify("pw", encoded), ErrMalformedHash)
		})
	}
}
