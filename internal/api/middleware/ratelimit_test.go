package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bistroline/gateway/internal/config"
)

func TestRateLimitAdminTier(t *testing.T) {
	limiter := RateLimit(config.RateLimitConfig{AdminPerMinute: 2})
	handler := WithRateLimitTierHandler(TierAdmin)(limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("GET", "/api/v1/keys", nil)
		r.RemoteAddr = "192.0.2.1:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two requests = %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
}

func TestRateLimitKeysByClient(t *testing.T) {
	limiter := RateLimit(config.RateLimitConfig{AdminPerMinute: 1})
	handler := WithRateLimitTierHandler(TierAdmin)(limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	for _, addr := range []string{"192.0.2.1:1", "192.0.2.2:1"} {
		r := httptest.NewRequest("GET", "/api/v1/keys", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("client %s first request = %d, want 200", addr, w.Code)
		}
	}
}

func TestRateLimitSkipsHealthAndUnlimitedTiers(t *testing.T) {
	limiter := RateLimit(config.RateLimitConfig{AdminPerMinute: 1})
	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Public tier has no configured limit.
	for i := 0; i < 10; i++ {
		r := httptest.NewRequest("GET", "/api/v1/whatever", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("public request %d = %d, want 200", i, w.Code)
		}
	}

	for i := 0; i < 10; i++ {
		r := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("healthz request %d = %d, want 200", i, w.Code)
		}
	}
}

func TestLimiterStoreCleanupStops(t *testing.T) {
	store := newLimiterStore(config.RateLimitConfig{AdminPerMinute: 1})
	store.limiter(TierAdmin, "192.0.2.1")
	store.stop()

	select {
	case <-store.stopCleanup:
	default:
		t.Fatal("stop() did not close the cleanup channel")
	}

	// cleanup stays callable directly after the loop exits.
	store.cleanup()
}
