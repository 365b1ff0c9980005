package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// OpaqueTokenBytes is the entropy of refresh tokens (256 bits).
const OpaqueTokenBytes = 32

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewOpaqueToken returns a fresh 256-bit token together with the fingerprint
// that should be persisted in its place.
func NewOpaqueToken() (token, fingerprint string, err error) {
	token, err = RandomToken(OpaqueTokenBytes)
	if err != nil {
		return "", "", err
	}
	return token, Fingerprint(token), nil
}

// Fingerprint is the SHA-256 of token, base64url encoded (43 chars).
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// FingerprintMatches reports in constant time whether token hashes to
// fingerprint.
func FingerprintMatches(token, fingerprint string) bool {
	return subtle.ConstantTimeCompare([]byte(Fingerprint(token)), []byte(fingerprint)) == 1
}

// ConstantTimeEqual compares two secrets without leaking where they differ.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
