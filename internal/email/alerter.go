package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bistroline/gateway/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// Alerter emails operators when background delivery work degrades. With
// alerting disabled it logs and drops every notification, so callers never
// branch on configuration.
type Alerter struct {
	cfg      config.AlertsConfig
	client   *resend.Client
	logger   zerolog.Logger
	throttle *throttle
}

// NewAlerter validates the configuration and builds the Resend-backed
// alerter. A disabled config yields a log-only alerter.
func NewAlerter(cfg config.AlertsConfig, logger zerolog.Logger) (*Alerter, error) {
	a := &Alerter{
		cfg:      cfg,
		logger:   logger.With().Str("component", "alerts").Logger(),
		throttle: newThrottle(cfg.MinInterval),
	}
	if !cfg.Enabled {
		return a, nil
	}

	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("alerts enabled but ALERTS_RESEND_API_KEY is empty")
	}
	if err := validateAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid alert sender: %w", err)
	}
	if err := validateAddress(cfg.To); err != nil {
		return nil, fmt.Errorf("invalid alert recipient: %w", err)
	}

	a.client = resend.NewClient(cfg.ResendAPIKey)
	return a, nil
}

// JobFailure satisfies the job layer's alert hook. Only terminal failures
// page anyone; routine retry errors stay in the logs.
func (a *Alerter) JobFailure(ctx context.Context, job *rivertype.JobRow, err error) {
	terminal := job.Attempt >= job.MaxAttempts
	event := a.logger.Warn().
		Int64("job_id", job.ID).
		Str("kind", job.Kind).
		Int("attempt", job.Attempt).
		Err(err)
	if !terminal {
		event.Msg("job attempt failed")
		return
	}
	event.Msg("job failed terminally")

	subject := fmt.Sprintf("[gateway] %s job %d failed after %d attempts", job.Kind, job.ID, job.Attempt)
	body := fmt.Sprintf(
		"Job kind: %s\nJob ID: %d\nAttempts: %d/%d\nLast error: %v\nTime: %s\n",
		job.Kind, job.ID, job.Attempt, job.MaxAttempts, err, time.Now().UTC().Format(time.RFC3339),
	)
	a.send(ctx, subject, body)
}

// send delivers one alert email, rate limited so a burst of failures does
// not flood the recipient.
func (a *Alerter) send(ctx context.Context, subject, body string) {
	if a.client == nil {
		return
	}
	if !a.throttle.allow(subject) {
		a.logger.Debug().Str("subject", subject).Msg("alert email throttled")
		return
	}

	params := &resend.SendEmailRequest{
		From:    a.cfg.From,
		To:      []string{a.cfg.To},
		Subject: subject,
		Text:    body,
	}
	if _, err := a.client.Emails.SendWithContext(ctx, params); err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			a.logger.Warn().
				Str("limit", rateLimitErr.Limit).
				Str("reset", rateLimitErr.Reset).
				Msg("resend rate limit exceeded")
			return
		}
		a.logger.Error().Err(err).Str("subject", subject).Msg("alert email failed")
		return
	}
	a.logger.Info().Str("subject", subject).Msg("alert email sent")
}

func validateAddress(address string) error {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("email address contains newline characters")
	}
	return nil
}
