package problem

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteRendersProblemJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/v1/keys", nil)

	Write(w, r, 429, CodeIssuanceRateLimited, "Too Many Requests", errors.New("quota spent"), "test")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Code != 429 {
		t.Errorf("status = %d, want 429", w.Code)
	}

	var p ProblemDetails
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !strings.HasSuffix(p.Type, "/"+CodeIssuanceRateLimited) {
		t.Errorf("type = %q, want %s suffix", p.Type, CodeIssuanceRateLimited)
	}
	if p.Instance != "/api/v1/keys" {
		t.Errorf("instance = %q", p.Instance)
	}
	if p.Detail != "quota spent" {
		t.Errorf("detail = %q (test env should surface the error)", p.Detail)
	}
}

func TestWriteHidesDetailInProduction(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/v1/keys", nil)

	Write(w, r, 500, CodeInternal, "Internal Server Error", errors.New("pq: connection refused"), "production")

	var p ProblemDetails
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if strings.Contains(p.Detail, "connection refused") {
		t.Errorf("detail leaked internals: %q", p.Detail)
	}
}

func TestWriteValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/v1/webhooks/subscriptions", nil)

	Write(w, r, 422, CodeValidationFailed, "Validation Failed", nil, "test",
		WithErrors(map[string]any{"url": "must be https"}))

	var p ProblemDetails
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if p.Errors["url"] != "must be https" {
		t.Errorf("errors = %v", p.Errors)
	}
}
