package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type captureRecorder struct {
	entries []Entry
	err     error
}

func (c *captureRecorder) InsertAuditEntry(_ context.Context, entry Entry) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, entry)
	return nil
}

func TestLoggerPersistsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	recorder := &captureRecorder{}
	logger := NewLogger(zerolog.New(&buf), recorder)

	logger.Success(context.Background(), "apikey.revoke", "ops@bistroline.test", "api_key", "abc-123", "10.0.0.1", nil)

	if len(recorder.entries) != 1 {
		t.Fatalf("persisted entries = %d, want 1", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Action != "apikey.revoke" || entry.Status != "success" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if line["action"] != "apikey.revoke" {
		t.Errorf("logged action = %v", line["action"])
	}
	if line["resource_id"] != "abc-123" {
		t.Errorf("logged resource_id = %v", line["resource_id"])
	}
}

func TestLoggerToleratesRecorderFailure(t *testing.T) {
	var buf bytes.Buffer
	recorder := &captureRecorder{err: errors.New("connection refused")}
	logger := NewLogger(zerolog.New(&buf), recorder)

	// Must not panic or propagate the error.
	logger.Failure(context.Background(), "subscription.disable", "ops@bistroline.test", "10.0.0.1", nil)

	if !bytes.Contains(buf.Bytes(), []byte("audit entry not persisted")) {
		t.Error("recorder failure was not logged")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded single", headers: map[string]string{"X-Forwarded-For": "203.0.113.9"}, want: "203.0.113.9"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, want: "203.0.113.9"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, want: "198.51.100.4"},
		{name: "remote addr fallback", remote: "192.0.2.7:1234", want: "192.0.2.7:1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
