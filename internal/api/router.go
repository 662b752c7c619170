package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/bistroline/gateway/internal/api/handlers"
	"github.com/bistroline/gateway/internal/api/middleware"
	"github.com/bistroline/gateway/internal/audit"
	"github.com/bistroline/gateway/internal/auth"
	"github.com/bistroline/gateway/internal/config"
	"github.com/bistroline/gateway/internal/domain/apikeys"
	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/bistroline/gateway/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig carries the wired services the router mounts. Pool may be
// nil; the readiness probe then reports ready unconditionally.
type RouterConfig struct {
	Env         string
	Keys        *apikeys.Service
	Registry    *webhooks.Registry
	Dispatcher  *webhooks.Dispatcher
	AuditLogger *audit.Logger
	JWT         *auth.JWTManager
	Pool        *pgxpool.Pool
	RateLimit   config.RateLimitConfig
	Logger      zerolog.Logger
}

// NewRouter mounts the management API, the event ingest endpoint, and the
// operational endpoints. Management routes authenticate with admin JWTs;
// ingest authenticates with issued API keys.
func NewRouter(cfg RouterConfig) http.Handler {
	keysHandler := handlers.NewKeysHandler(cfg.Keys, cfg.AuditLogger, cfg.Env)
	subsHandler := handlers.NewSubscriptionsHandler(cfg.Registry, cfg.AuditLogger, cfg.Env)
	deliveriesHandler := handlers.NewDeliveriesHandler(cfg.Dispatcher, cfg.AuditLogger, cfg.Env)
	eventsHandler := handlers.NewEventsHandler(cfg.Dispatcher, cfg.Env)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)

	adminAuth := middleware.AdminAuth(cfg.JWT, cfg.Env)
	keyAuth := middleware.KeyAuth(cfg.Keys, cfg.Env)
	adminTier := middleware.WithRateLimitTierHandler(middleware.TierAdmin)
	rateLimit := middleware.RateLimit(cfg.RateLimit)

	// The tier wrapper must run before the limiter reads it from the
	// request context, and the limiter runs before auth so unauthenticated
	// floods are shed too.
	admin := func(h http.HandlerFunc) http.Handler {
		return adminTier(rateLimit(adminAuth(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(healthHandler.Live))
	mux.Handle("/readyz", http.HandlerFunc(healthHandler.Ready))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/keys", methodMux(map[string]http.Handler{
		http.MethodPost: admin(keysHandler.Create),
		http.MethodGet:  admin(keysHandler.List),
	}))
	mux.Handle("/api/v1/keys/{id}/revoke", methodMux(map[string]http.Handler{
		http.MethodPost: admin(keysHandler.Revoke),
	}))

	mux.Handle("/api/v1/webhooks/subscriptions", methodMux(map[string]http.Handler{
		http.MethodPost: admin(subsHandler.Create),
		http.MethodGet:  admin(subsHandler.List),
	}))
	mux.Handle("/api/v1/webhooks/subscriptions/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:   admin(subsHandler.Get),
		http.MethodPatch: admin(subsHandler.Update),
	}))
	mux.Handle("/api/v1/webhooks/subscriptions/{id}/disable", methodMux(map[string]http.Handler{
		http.MethodPost: admin(subsHandler.Disable),
	}))
	mux.Handle("/api/v1/webhooks/subscriptions/{id}/enable", methodMux(map[string]http.Handler{
		http.MethodPost: admin(subsHandler.Enable),
	}))
	mux.Handle("/api/v1/webhooks/subscriptions/{id}/rotate-secret", methodMux(map[string]http.Handler{
		http.MethodPost: admin(subsHandler.RotateSecret),
	}))

	mux.Handle("/api/v1/webhooks/deliveries", methodMux(map[string]http.Handler{
		http.MethodGet: admin(deliveriesHandler.List),
	}))
	mux.Handle("/api/v1/webhooks/deliveries/{id}/retry", methodMux(map[string]http.Handler{
		http.MethodPost: admin(deliveriesHandler.Retry),
	}))

	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodPost: keyAuth(http.HandlerFunc(eventsHandler.Publish)),
	}))

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(cfg.Logger)(handler)
	handler = middleware.CorrelationID(cfg.Logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
