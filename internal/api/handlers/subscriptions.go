package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bistroline/gateway/internal/api/problem"
	"github.com/bistroline/gateway/internal/audit"
	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/google/uuid"
)

// SubscriptionsHandler serves webhook endpoint registration and lifecycle.
type SubscriptionsHandler struct {
	Registry    *webhooks.Registry
	AuditLogger *audit.Logger
	Env         string
}

func NewSubscriptionsHandler(registry *webhooks.Registry, auditLogger *audit.Logger, env string) *SubscriptionsHandler {
	return &SubscriptionsHandler{Registry: registry, AuditLogger: auditLogger, Env: env}
}

type createSubscriptionRequest struct {
	TargetURL  string   `json:"target_url"`
	EventTypes []string `json:"event_types"`
}

type updateSubscriptionRequest struct {
	EventTypes []string `json:"event_types"`
}

type subscriptionResponse struct {
	ID         string     `json:"id"`
	TargetURL  string     `json:"target_url"`
	EventTypes []string   `json:"event_types"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
	// Secret is present only when freshly minted (creation and rotation).
	Secret string `json:"secret,omitempty"`
}

func subscriptionToResponse(sub *webhooks.Subscription, secret string) subscriptionResponse {
	return subscriptionResponse{
		ID:         sub.ID.String(),
		TargetURL:  sub.TargetURL,
		EventTypes: sub.EventTypes,
		Status:     string(sub.Status),
		CreatedAt:  sub.CreatedAt,
		DisabledAt: sub.DisabledAt,
		Secret:     secret,
	}
}

// writeRegistryError maps registry errors onto problem responses.
func (h *SubscriptionsHandler) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webhooks.ErrSubscriptionNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.CodeSubscriptionNotFound, "Subscription not found", err, h.Env)
	case errors.Is(err, webhooks.ErrInvalidTargetURL),
		errors.Is(err, webhooks.ErrInsecureTargetURL),
		errors.Is(err, webhooks.ErrEmptyEventTypes):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid subscription parameters", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
	}
}

// Create handles POST /api/v1/webhooks/subscriptions. The response carries
// the signing secret exactly once.
func (h *SubscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid request body", err, h.Env)
		return
	}

	sub, secret, err := h.Registry.Create(r.Context(), orgID, req.TargetURL, req.EventTypes)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	h.AuditLogger.Success(r.Context(), "webhook_subscription.create", actorFrom(r), "webhook_subscription", sub.ID.String(), audit.ClientIP(r), map[string]string{
		"target_url": sub.TargetURL,
	})
	writeJSON(w, r, http.StatusCreated, subscriptionToResponse(sub, secret))
}

// List handles GET /api/v1/webhooks/subscriptions.
func (h *SubscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	subs, err := h.Registry.List(r.Context(), orgID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		return
	}

	items := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		items = append(items, subscriptionToResponse(sub, ""))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// Get handles GET /api/v1/webhooks/subscriptions/{id}.
func (h *SubscriptionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	id, err := pathUUID(r)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.CodeSubscriptionNotFound, "Subscription not found", err, h.Env)
		return
	}

	sub, err := h.Registry.Get(r.Context(), id, orgID)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, subscriptionToResponse(sub, ""))
}

// Update handles PATCH /api/v1/webhooks/subscriptions/{id}. Only the event
// type set is mutable; the target URL and secret have their own lifecycle.
func (h *SubscriptionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	id, err := pathUUID(r)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.CodeSubscriptionNotFound, "Subscription not found", err, h.Env)
		return
	}

	var req updateSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid request body", err, h.Env)
		return
	}

	if err := h.Registry.UpdateEventTypes(r.Context(), id, orgID, req.EventTypes); err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	sub, err := h.Registry.Get(r.Context(), id, orgID)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	h.AuditLogger.Success(r.Context(), "webhook_subscription.update", actorFrom(r), "webhook_subscription", id.String(), audit.ClientIP(r), nil)
	writeJSON(w, r, http.StatusOK, subscriptionToResponse(sub, ""))
}

// Disable handles POST /api/v1/webhooks/subscriptions/{id}/disable.
// Deliveries already scheduled still run; only new fan-out stops.
func (h *SubscriptionsHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, "webhook_subscription.disable", h.Registry.Disable)
}

// Enable handles POST /api/v1/webhooks/subscriptions/{id}/enable.
func (h *SubscriptionsHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, "webhook_subscription.enable", h.Registry.Enable)
}

func (h *SubscriptionsHandler) setStatus(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, id, orgID uuid.UUID) error) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	id, err := pathUUID(r)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.CodeSubscriptionNotFound, "Subscription not found", err, h.Env)
		return
	}

	if err := apply(r.Context(), id, orgID); err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	h.AuditLogger.Success(r.Context(), action, actorFrom(r), "webhook_subscription", id.String(), audit.ClientIP(r), nil)
	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles POST /api/v1/webhooks/subscriptions/{id}/rotate-secret.
// The old secret stops verifying immediately.
func (h *SubscriptionsHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	id, err := pathUUID(r)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.CodeSubscriptionNotFound, "Subscription not found", err, h.Env)
		return
	}

	secret, err := h.Registry.RotateSecret(r.Context(), id, orgID)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	h.AuditLogger.Success(r.Context(), "webhook_subscription.rotate_secret", actorFrom(r), "webhook_subscription", id.String(), audit.ClientIP(r), nil)
	writeJSON(w, r, http.StatusOK, map[string]string{"id": id.String(), "secret": secret})
}
