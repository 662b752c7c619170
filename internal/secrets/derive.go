package secrets

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeyLength is the length of derived keys in bytes (256 bits).
const DerivedKeyLength = 32

// Key derivation purpose strings. Each purpose yields a cryptographically
// independent key from the same master secret.
const (
	purposeWebhookSecretEnc = "gateway-webhook-secret-enc-v1"
	purposeAdminJWT         = "gateway-admin-jwt-v1"
)

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a 32-byte key from the master secret using HKDF-SHA256
// (RFC 5869). The purpose string provides domain separation: compromise of
// one derived key does not expose the master secret or sibling keys.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	// salt=nil is acceptable per RFC 5869 (defaults to zeros).
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	key := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveWebhookEncryptionKey derives the AES key that encrypts webhook
// signing secrets at rest.
func DeriveWebhookEncryptionKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeWebhookSecretEnc)
}

// DeriveAdminJWTKey derives the HMAC key that signs operator JWT tokens.
func DeriveAdminJWTKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeAdminJWT)
}
