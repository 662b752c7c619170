package apikeys

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Environment scopes a credential to sandbox or production data. It is
// immutable after issuance.
type Environment string

const (
	EnvironmentSandbox    Environment = "SANDBOX"
	EnvironmentProduction Environment = "PRODUCTION"
)

// Secret tags. The tag is the leading, human-visible part of both the full
// secret and the stored prefix (e.g. "live_AbCdEfGh").
const (
	tagProduction = "live_"
	tagSandbox    = "test_"

	// prefixTokenChars is how many token characters follow the tag in the
	// public prefix used for indexed lookup.
	prefixTokenChars = 8

	// tokenChars is the length of a base64url-encoded 256-bit token.
	tokenChars = 43
)

// Tag returns the secret prefix tag for the environment.
func (e Environment) Tag() string {
	if e == EnvironmentProduction {
		return tagProduction
	}
	return tagSandbox
}

// Valid reports whether the environment is one of the two known values.
func (e Environment) Valid() bool {
	return e == EnvironmentSandbox || e == EnvironmentProduction
}

// environmentFromTag maps a presented secret's tag back to its environment.
func environmentFromTag(secret string) (Environment, bool) {
	switch {
	case strings.HasPrefix(secret, tagProduction):
		return EnvironmentProduction, true
	case strings.HasPrefix(secret, tagSandbox):
		return EnvironmentSandbox, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a key. The transition is monotonic:
// ACTIVE may become REVOKED, never the reverse.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
)

// Key is an issued API credential. The plaintext secret exists only in the
// Issue response; only its bcrypt hash is stored.
type Key struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	Name        string
	Environment Environment
	Prefix      string
	SecretHash  string
	Status      Status
	IssuedAt    time.Time
	RevokedAt   *time.Time
	UsageCount  int64
	LastUsedAt  *time.Time
}

// AuthContext is the result of a successful Verify call, handed to the
// inbound request pipeline.
type AuthContext struct {
	KeyID       uuid.UUID
	OrgID       uuid.UUID
	Environment Environment
	Prefix      string
}

// IssueParams are the caller-supplied inputs for minting a key.
type IssueParams struct {
	OrgID       uuid.UUID   `validate:"required"`
	Name        string      `validate:"required,max=100"`
	Environment Environment `validate:"required"`
}

// CreateKeyParams are the storage-level inputs for persisting a new key.
type CreateKeyParams struct {
	OrgID       uuid.UUID
	Name        string
	Environment Environment
	Prefix      string
	SecretHash  string
}
