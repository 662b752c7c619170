// Package webhooks contains the subscription registry and the event
// dispatcher: partner endpoint management, signed HTTP delivery, and the
// durable delivery ledger with its retry state machine.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/bistroline/gateway/internal/secrets"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SecretPrefix tags webhook signing secrets so they are recognizable in
// partner configuration.
const SecretPrefix = "whsec_"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidTargetURL     = errors.New("target url invalid")
	ErrInsecureTargetURL    = errors.New("target url must use https")
	ErrEmptyEventTypes      = errors.New("event type set cannot be empty")
)

// Registry manages webhook subscriptions and their signing secrets. Secrets
// are generated here, returned to the caller exactly once in plaintext, and
// stored AES-GCM encrypted so the dispatcher can reuse them.
type Registry struct {
	repo   SubscriptionRepository
	box    *secrets.SecretBox
	logger zerolog.Logger

	// allowInsecureURLs permits http:// targets; enabled outside
	// production so local receivers can be tested.
	allowInsecureURLs bool
}

// NewRegistry creates the subscription registry.
func NewRegistry(repo SubscriptionRepository, box *secrets.SecretBox, logger zerolog.Logger, allowInsecureURLs bool) *Registry {
	return &Registry{
		repo:              repo,
		box:               box,
		logger:            logger.With().Str("component", "webhook_registry").Logger(),
		allowInsecureURLs: allowInsecureURLs,
	}
}

// Create registers a partner endpoint and returns the subscription together
// with the plaintext signing secret. The plaintext is shown exactly once.
func (r *Registry) Create(ctx context.Context, orgID uuid.UUID, targetURL string, eventTypes []string) (*Subscription, string, error) {
	if err := r.validateTargetURL(targetURL); err != nil {
		return nil, "", err
	}
	types, err := normalizeEventTypes(eventTypes)
	if err != nil {
		return nil, "", err
	}

	plaintext, ciphertext, err := r.newSecret()
	if err != nil {
		return nil, "", fmt.Errorf("create subscription: %w", err)
	}

	sub, err := r.repo.CreateSubscription(ctx, CreateSubscriptionParams{
		OrgID:            orgID,
		TargetURL:        targetURL,
		SecretCiphertext: ciphertext,
		EventTypes:       types,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create subscription: %w", err)
	}

	r.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Str("org_id", orgID.String()).
		Str("target_url", targetURL).
		Strs("event_types", types).
		Msg("subscription created")

	return sub, plaintext, nil
}

// Get returns an org-scoped subscription.
func (r *Registry) Get(ctx context.Context, id, orgID uuid.UUID) (*Subscription, error) {
	sub, err := r.repo.GetSubscription(ctx, id)
	if err != nil || sub == nil || sub.OrgID != orgID {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// List returns the org's subscriptions, newest first.
func (r *Registry) List(ctx context.Context, orgID uuid.UUID) ([]*Subscription, error) {
	subs, err := r.repo.ListSubscriptionsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// Disable stops new deliveries from being created for the subscription.
// Already-scheduled retries are allowed to run to completion; the ledger
// and delivery history are untouched.
func (r *Registry) Disable(ctx context.Context, id, orgID uuid.UUID) error {
	return r.setStatus(ctx, id, orgID, SubscriptionDisabled)
}

// Enable restores delivery eligibility.
func (r *Registry) Enable(ctx context.Context, id, orgID uuid.UUID) error {
	return r.setStatus(ctx, id, orgID, SubscriptionActive)
}

func (r *Registry) setStatus(ctx context.Context, id, orgID uuid.UUID, status SubscriptionStatus) error {
	sub, err := r.Get(ctx, id, orgID)
	if err != nil {
		return err
	}
	if sub.Status == status {
		return nil
	}
	if err := r.repo.SetSubscriptionStatus(ctx, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	r.logger.Info().
		Str("subscription_id", id.String()).
		Str("status", string(status)).
		Msg("subscription status changed")
	return nil
}

// RotateSecret replaces the signing secret and returns the new plaintext
// once. Signatures computed after this instant use the new secret;
// already-recorded deliveries are unaffected, since their signatures were
// computed against the secret active at send time.
func (r *Registry) RotateSecret(ctx context.Context, id, orgID uuid.UUID) (string, error) {
	if _, err := r.Get(ctx, id, orgID); err != nil {
		return "", err
	}

	plaintext, ciphertext, err := r.newSecret()
	if err != nil {
		return "", fmt.Errorf("rotate secret: %w", err)
	}
	if err := r.repo.UpdateSigningSecret(ctx, id, ciphertext); err != nil {
		return "", fmt.Errorf("rotate secret: %w", err)
	}

	r.logger.Info().
		Str("subscription_id", id.String()).
		Msg("signing secret rotated")
	return plaintext, nil
}

// UpdateEventTypes atomically replaces the subscribed set. Takes effect for
// events enqueued after the update.
func (r *Registry) UpdateEventTypes(ctx context.Context, id, orgID uuid.UUID, eventTypes []string) error {
	if _, err := r.Get(ctx, id, orgID); err != nil {
		return err
	}
	types, err := normalizeEventTypes(eventTypes)
	if err != nil {
		return err
	}
	if err := r.repo.UpdateEventTypes(ctx, id, types); err != nil {
		return fmt.Errorf("update event types: %w", err)
	}
	return nil
}

// DecryptSecret recovers the plaintext signing secret for the dispatcher.
func (r *Registry) DecryptSecret(sub *Subscription) (string, error) {
	return r.box.Open(sub.SecretCiphertext)
}

func (r *Registry) newSecret() (plaintext, ciphertext string, err error) {
	token, err := secrets.GenerateToken()
	if err != nil {
		return "", "", err
	}
	plaintext = SecretPrefix + token
	ciphertext, err = r.box.Seal(plaintext)
	if err != nil {
		return "", "", err
	}
	return plaintext, ciphertext, nil
}

func (r *Registry) validateTargetURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return ErrInvalidTargetURL
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if r.allowInsecureURLs {
			return nil
		}
		return ErrInsecureTargetURL
	default:
		return ErrInvalidTargetURL
	}
}

// normalizeEventTypes deduplicates and sorts the set, rejecting empty input.
func normalizeEventTypes(eventTypes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(eventTypes))
	out := make([]string, 0, len(eventTypes))
	for _, t := range eventTypes {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrEmptyEventTypes
	}
	sort.Strings(out)
	return out, nil
}
