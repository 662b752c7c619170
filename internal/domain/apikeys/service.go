// Package apikeys issues, verifies, and revokes the credentials external
// API callers present to the platform.
//
// Secrets are 256-bit random tokens carrying an environment tag
// ("live_" / "test_"); only a bcrypt hash is stored, so a secret is visible
// exactly once, in the Issue response. Verification is a single indexed
// prefix lookup plus a bcrypt comparison, and revocation takes effect on the
// next Verify call because nothing on the verify path is cached.
//
// Core operations:
//   - Issue: mints a key under a per-organization rate quota
//   - Verify: authenticates a presented secret into an AuthContext
//   - Revoke: idempotent, monotonic ACTIVE -> REVOKED transition
//   - List: organization-scoped key inventory
package apikeys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bistroline/gateway/internal/metrics"
	"github.com/bistroline/gateway/internal/secrets"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Domain errors surfaced to the API layer.
var (
	// ErrCredentialInvalid covers unknown, garbled, or mismatched secrets.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrCredentialRevoked is kept distinct from ErrCredentialInvalid for
	// observability; the caller-visible effect is identical.
	ErrCredentialRevoked = errors.New("credential revoked")

	// ErrIssuanceRateLimited is returned when an organization exceeds its
	// key minting quota for the window.
	ErrIssuanceRateLimited = errors.New("key issuance rate limited")

	// ErrKeyNotFound is returned for lifecycle operations on unknown keys.
	ErrKeyNotFound = errors.New("api key not found")
)

// Service implements credential issuance and verification on top of a
// Repository. All key mutation in the system goes through this service.
type Service struct {
	repo       Repository
	recorder   *UsageRecorder
	limiter    *issuanceLimiter
	logger     zerolog.Logger
	validator  *validator.Validate
	bcryptCost int
}

// Options tune service behavior; zero values select defaults.
type Options struct {
	// BcryptCost is the hashing work factor (default secrets.DefaultBcryptCost).
	BcryptCost int
	// IssuancePerHour is the per-org minting quota (default 10, <=0 disables
	// but must be passed explicitly as -1).
	IssuancePerHour int
}

// NewService creates the API key service. The recorder may be nil, in which
// case usage metering is skipped (useful in tests and CLI contexts).
func NewService(repo Repository, recorder *UsageRecorder, logger zerolog.Logger, opts Options) *Service {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = secrets.DefaultBcryptCost
	}
	perHour := opts.IssuancePerHour
	if perHour == 0 {
		perHour = 10
	}
	return &Service{
		repo:       repo,
		recorder:   recorder,
		limiter:    newIssuanceLimiter(perHour),
		logger:     logger.With().Str("component", "apikeys").Logger(),
		validator:  validator.New(),
		bcryptCost: cost,
	}
}

// Issue mints a new credential for the organization and returns the record
// together with the plaintext secret. The plaintext is never persisted or
// logged; it cannot be recovered after this call returns.
func (s *Service) Issue(ctx context.Context, params IssueParams) (*Key, string, error) {
	if err := s.validator.Struct(params); err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrCredentialInvalid, err)
	}
	if !params.Environment.Valid() {
		return nil, "", fmt.Errorf("%w: unknown environment %q", ErrCredentialInvalid, params.Environment)
	}
	if !s.limiter.Allow(params.OrgID) {
		return nil, "", ErrIssuanceRateLimited
	}

	token, err := secrets.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("issue key: %w", err)
	}
	tag := params.Environment.Tag()
	plaintext := tag + token
	prefix := tag + token[:prefixTokenChars]

	hash, err := secrets.HashSecret(plaintext, s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("issue key: %w", err)
	}

	key, err := s.repo.CreateKey(ctx, CreateKeyParams{
		OrgID:       params.OrgID,
		Name:        params.Name,
		Environment: params.Environment,
		Prefix:      prefix,
		SecretHash:  hash,
	})
	if err != nil {
		return nil, "", fmt.Errorf("issue key: %w", err)
	}

	metrics.KeysIssued.WithLabelValues(string(params.Environment)).Inc()
	s.logger.Info().
		Str("org_id", params.OrgID.String()).
		Str("key_id", key.ID.String()).
		Str("prefix", prefix).
		Str("environment", string(params.Environment)).
		Msg("api key issued")

	return key, plaintext, nil
}

// Verify authenticates a presented secret. On success it returns the
// caller's AuthContext and records usage asynchronously; the usage write
// never blocks this call.
func (s *Service) Verify(ctx context.Context, presented string) (AuthContext, error) {
	env, ok := environmentFromTag(presented)
	if !ok {
		metrics.VerifyAttempts.WithLabelValues("invalid").Inc()
		return AuthContext{}, ErrCredentialInvalid
	}
	tag := env.Tag()
	if len(presented) != len(tag)+tokenChars {
		metrics.VerifyAttempts.WithLabelValues("invalid").Inc()
		return AuthContext{}, ErrCredentialInvalid
	}

	prefix := presented[:len(tag)+prefixTokenChars]
	key, err := s.repo.LookupByPrefix(ctx, prefix)
	if err != nil || key == nil {
		metrics.VerifyAttempts.WithLabelValues("invalid").Inc()
		return AuthContext{}, ErrCredentialInvalid
	}

	if !secrets.VerifySecret(key.SecretHash, presented) {
		metrics.VerifyAttempts.WithLabelValues("invalid").Inc()
		return AuthContext{}, ErrCredentialInvalid
	}
	if key.Status != StatusActive {
		metrics.VerifyAttempts.WithLabelValues("revoked").Inc()
		return AuthContext{}, ErrCredentialRevoked
	}
	metrics.VerifyAttempts.WithLabelValues("success").Inc()

	if s.recorder != nil {
		s.recorder.Touch(key.ID, time.Now().UTC())
	}

	return AuthContext{
		KeyID:       key.ID,
		OrgID:       key.OrgID,
		Environment: key.Environment,
		Prefix:      key.Prefix,
	}, nil
}

// Revoke marks the key revoked. Revoking an already-revoked key succeeds as
// a no-op. Every Verify call after Revoke returns fails: the verify path
// reads the row directly, so there is no stale-positive window.
func (s *Service) Revoke(ctx context.Context, keyID uuid.UUID) error {
	key, err := s.repo.GetKeyByID(ctx, keyID)
	if err != nil || key == nil {
		return ErrKeyNotFound
	}
	if key.Status == StatusRevoked {
		return nil
	}

	if err := s.repo.RevokeKey(ctx, keyID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	metrics.KeysRevoked.Inc()
	s.logger.Info().
		Str("key_id", keyID.String()).
		Str("org_id", key.OrgID.String()).
		Msg("api key revoked")
	return nil
}

// List returns all keys owned by the organization, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]*Key, error) {
	keys, err := s.repo.ListKeysByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Get returns one key by ID.
func (s *Service) Get(ctx context.Context, keyID uuid.UUID) (*Key, error) {
	key, err := s.repo.GetKeyByID(ctx, keyID)
	if err != nil || key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// Close releases the issuance limiter's background resources.
func (s *Service) Close() {
	s.limiter.Close()
}
