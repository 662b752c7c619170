// Package secrets holds the cryptographic primitives shared by credential
// issuance and webhook signing: random token generation, one-way hashing for
// API key secrets, key derivation from the master secret, symmetric
// encryption for stored signing secrets, and HMAC payload signatures.
//
// Nothing in this package keeps state beyond configured work factors; callers
// own persistence.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenBytes is the entropy of generated secrets (256 bits).
	TokenBytes = 32

	// DefaultBcryptCost is the work factor for hashing API key secrets
	// (12 = roughly 250-300ms per hash on current hardware).
	DefaultBcryptCost = 12
)

// GenerateToken returns a fresh 256-bit random token, base64url-encoded
// without padding (43 characters).
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret produces a salted one-way hash of an API key secret. bcrypt
// embeds the salt and cost in the encoded hash, so verification needs no
// extra stored parameters.
func HashSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches the stored hash. The bcrypt
// comparison is constant-time with respect to the hash contents.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ConstantTimeEqual compares two strings without leaking how far they match.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
