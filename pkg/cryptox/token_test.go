package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	t.Run("sizes", func(t *testing.T) {
		for _, n := range []int{16, 24, OpaqueTokenBytes, 64} {
			a, err := RandomToken(n)
			require.NoError(t, err)
			b, err := RandomToken(n)
			require.NoError(t, err)
			require.NotEqual(t, a, b)
		}
	})

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		for _, n := range []int{0, -4} {
			tok, err := RandomToken(n)
			require.Error(t, err)
			require.Empty(t, tok)
		}
	})

	t.Run("256-bit token encodes to 43 chars", func(t *testing.T) {
		tok, err := RandomToken(OpaqueTokenBytes)
		require.NoError(t, err)
		require.Len(t, tok, 43)
	})
}

func TestNewOpaqueToken(t *testing.T) {
	tok, fp, err := NewOpaqueToken()
	require.NoError(t, err)
	require.NotEqual(t, tok, fp)
	require.Equal(t, Fingerprint(tok), fp)
	require.True(t, FingerprintMatches(tok, fp))
	require.False(t, FingerprintMatches(tok+"x", fp))
}

func TestFingerprint(t *testing.T) {
	require.Equal(t, Fingerprint("a"), Fingerprint("a"))
	require.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
	require.Len(t, Fingerprint("a"), 43)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual("secret", "secret"))
	require.False(t, ConstantTimeEqual("secret", "Secret"))
	require.False(t, ConstantTimeEqual("secret", "secret "))
}
