// Package audit records operator mutations: who issued or revoked a key,
// who disabled a subscription, who requested a manual retry. Entries go to
// the structured log always and to Postgres when a recorder is attached.
package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one operator action.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Recorder persists audit entries. Implemented by the postgres store.
type Recorder interface {
	InsertAuditEntry(ctx context.Context, entry Entry) error
}

// Logger writes audit entries. Persistence is best effort: a failed insert
// is logged but never fails the operation being audited.
type Logger struct {
	recorder Recorder
	logger   zerolog.Logger
}

func NewLogger(logger zerolog.Logger, recorder Recorder) *Logger {
	return &Logger{
		recorder: recorder,
		logger:   logger.With().Str("component", "audit").Logger(),
	}
}

func (l *Logger) Log(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	event := l.logger.Info().
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		event = event.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		event = event.Str("resource_id", entry.ResourceID)
	}
	if entry.IPAddress != "" {
		event = event.Str("ip_address", entry.IPAddress)
	}
	event.Msg("audit")

	if l.recorder != nil {
		if err := l.recorder.InsertAuditEntry(ctx, entry); err != nil {
			l.logger.Warn().Err(err).Str("action", entry.Action).Msg("audit entry not persisted")
		}
	}
}

// Success records a completed operator action.
func (l *Logger) Success(ctx context.Context, action, actor, resourceType, resourceID, ip string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ip,
		Status:       "success",
		Details:      details,
	})
}

// Failure records a rejected or failed operator action.
func (l *Logger) Failure(ctx context.Context, action, actor, ip string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:    action,
		Actor:     actor,
		IPAddress: ip,
		Status:    "failure",
		Details:   details,
	})
}

// ClientIP extracts the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
