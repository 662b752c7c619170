package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bistroline/gateway/internal/api/problem"
	"github.com/bistroline/gateway/internal/audit"
	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/google/uuid"
)

// DeliveriesHandler serves the delivery ledger: inspection and manual retry.
type DeliveriesHandler struct {
	Dispatcher  *webhooks.Dispatcher
	AuditLogger *audit.Logger
	Env         string
}

func NewDeliveriesHandler(dispatcher *webhooks.Dispatcher, auditLogger *audit.Logger, env string) *DeliveriesHandler {
	return &DeliveriesHandler{Dispatcher: dispatcher, AuditLogger: auditLogger, Env: env}
}

type deliveryResponse struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	LastResponse   *int       `json:"last_response,omitempty"`
	LastLatencyMs  *int64     `json:"last_latency_ms,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func deliveryToResponse(d *webhooks.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:             d.ID.String(),
		SubscriptionID: d.SubscriptionID.String(),
		EventID:        d.EventID,
		EventType:      d.EventType,
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		LastResponse:   d.LastResponse,
		LastLatencyMs:  d.LastLatencyMs,
		LastError:      d.LastError,
		NextRetryAt:    d.NextRetryAt,
		CreatedAt:      d.CreatedAt,
	}
}

// List handles GET /api/v1/webhooks/deliveries with optional
// subscription_id, status, limit, and cursor query parameters.
func (h *DeliveriesHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter webhooks.DeliveryFilter
	if raw := q.Get("subscription_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid subscription_id filter", err, h.Env)
			return
		}
		filter.SubscriptionID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := webhooks.DeliveryStatus(strings.ToUpper(raw))
		if !status.Valid() {
			problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid status filter", nil, h.Env)
			return
		}
		filter.Status = &status
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid limit", err, h.Env)
			return
		}
		limit = n
	}

	page, err := h.Dispatcher.ListDeliveries(r.Context(), orgID, filter, limit, q.Get("cursor"))
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		return
	}

	items := make([]deliveryResponse, 0, len(page.Items))
	for _, d := range page.Items {
		items = append(items, deliveryToResponse(d))
	}
	resp := map[string]any{"items": items}
	if page.NextCursor != "" {
		resp["next_cursor"] = page.NextCursor
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Retry handles POST /api/v1/webhooks/deliveries/{id}/retry. Accepted means
// one more attempt was scheduled; it does not predict the attempt's outcome.
func (h *DeliveriesHandler) Retry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	deliveryID, err := pathUUID(r)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.CodeDeliveryNotFound, "Delivery not found", err, h.Env)
		return
	}

	if err := h.Dispatcher.RetryDelivery(r.Context(), deliveryID, orgID); err != nil {
		switch {
		case errors.Is(err, webhooks.ErrDeliveryNotFound):
			problem.Write(w, r, http.StatusNotFound, problem.CodeDeliveryNotFound, "Delivery not found", err, h.Env)
		case errors.Is(err, webhooks.ErrRetryBudgetExceeded):
			problem.Write(w, r, http.StatusConflict, problem.CodeRetryBudgetExhausted, "Delivery retry budget exhausted", err, h.Env)
		case errors.Is(err, webhooks.ErrNotRetryable):
			problem.Write(w, r, http.StatusConflict, problem.CodeDeliveryNotRetryable, "Delivery is not retryable", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		}
		return
	}

	h.AuditLogger.Success(r.Context(), "webhook_delivery.retry", actorFrom(r), "webhook_delivery", deliveryID.String(), audit.ClientIP(r), nil)
	writeJSON(w, r, http.StatusAccepted, map[string]string{"id": deliveryID.String(), "status": string(webhooks.DeliveryPending)})
}
