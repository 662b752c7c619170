// Package problem renders RFC 7807 application/problem+json responses with
// stable machine-readable type codes.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// TypeBase prefixes every problem type URI. The final path segment is the
// stable code clients switch on.
const TypeBase = "https://gateway.bistroline.dev/problems/"

// Stable problem codes.
const (
	CodeCredentialInvalid    = "credential-invalid"
	CodeCredentialRevoked    = "credential-revoked"
	CodeIssuanceRateLimited  = "issuance-rate-limited"
	CodeSubscriptionNotFound = "subscription-not-found"
	CodeDeliveryNotFound     = "delivery-not-found"
	CodeDeliveryNotRetryable = "delivery-not-retryable"
	CodeRetryBudgetExhausted = "retry-budget-exhausted"
	CodeValidationFailed     = "validation-failed"
	CodeNotFound             = "not-found"
	CodeUnauthorized         = "unauthorized"
	CodeInternal             = "internal"
)

type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Write renders a problem response for the given code. err is logged, and
// surfaced as detail only outside production.
func Write(w http.ResponseWriter, r *http.Request, status int, code, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{
		Type:   TypeBase + code,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&p)
	}

	if p.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			p.Detail = err.Error()
		} else {
			p.Detail = http.StatusText(status)
		}
	}
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("code", code).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, p)
}

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	payload, err := json.Marshal(p)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}
