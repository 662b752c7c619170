package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bistroline/gateway/internal/auth"
	"github.com/bistroline/gateway/internal/domain/apikeys"
	"github.com/google/uuid"
)

type fakeVerifier struct {
	verifyFunc func(ctx context.Context, presented string) (apikeys.AuthContext, error)
}

func (f *fakeVerifier) Verify(ctx context.Context, presented string) (apikeys.AuthContext, error) {
	return f.verifyFunc(ctx, presented)
}

func okHandler(t *testing.T, saw *[]*http.Request) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*saw = append(*saw, r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthAcceptsValidToken(t *testing.T) {
	manager := auth.NewJWTManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour, "gateway")
	orgID := uuid.New()
	token, err := manager.Generate("ops", orgID, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var saw []*http.Request
	handler := AdminAuth(manager, "test")(okHandler(t, &saw))

	r := httptest.NewRequest("GET", "/api/v1/keys", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	claims := AdminClaims(saw[0])
	if claims == nil {
		t.Fatal("claims missing from context")
	}
	got, _ := claims.OrgUUID()
	if got != orgID {
		t.Errorf("org = %s, want %s", got, orgID)
	}
}

func TestAdminAuthRejects(t *testing.T) {
	manager := auth.NewJWTManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour, "gateway")
	var saw []*http.Request
	handler := AdminAuth(manager, "test")(okHandler(t, &saw))

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/keys", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
	if len(saw) != 0 {
		t.Errorf("handler reached %d times, want 0", len(saw))
	}
}

func TestKeyAuthPassesAuthContext(t *testing.T) {
	keyID, orgID := uuid.New(), uuid.New()
	verifier := &fakeVerifier{
		verifyFunc: func(_ context.Context, presented string) (apikeys.AuthContext, error) {
			if presented != "live_sometoken" {
				t.Errorf("presented = %q", presented)
			}
			return apikeys.AuthContext{KeyID: keyID, OrgID: orgID, Environment: apikeys.EnvironmentProduction}, nil
		},
	}

	var saw []*http.Request
	handler := KeyAuth(verifier, "test")(okHandler(t, &saw))

	r := httptest.NewRequest("POST", "/api/v1/events", nil)
	r.Header.Set("Authorization", "Bearer live_sometoken")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	authCtx := KeyContext(saw[0])
	if authCtx == nil || authCtx.OrgID != orgID {
		t.Fatalf("auth context = %+v", authCtx)
	}
}

func TestKeyAuthProblemCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "invalid", err: apikeys.ErrCredentialInvalid, wantCode: "credential-invalid"},
		{name: "revoked", err: apikeys.ErrCredentialRevoked, wantCode: "credential-revoked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &fakeVerifier{
				verifyFunc: func(context.Context, string) (apikeys.AuthContext, error) {
					return apikeys.AuthContext{}, tt.err
				},
			}
			handler := KeyAuth(verifier, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			}))

			r := httptest.NewRequest("POST", "/api/v1/events", nil)
			r.Header.Set("Authorization", "Bearer live_whatever")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if body := w.Body.String(); !strings.Contains(body, "/problems/"+tt.wantCode) {
				t.Errorf("body = %s, want code %s", body, tt.wantCode)
			}
		})
	}
}
