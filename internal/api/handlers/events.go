package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bistroline/gateway/internal/api/middleware"
	"github.com/bistroline/gateway/internal/api/problem"
	"github.com/bistroline/gateway/internal/domain/webhooks"
)

// EventsHandler accepts domain events from API-key-authenticated callers
// and fans them out to webhook subscriptions.
type EventsHandler struct {
	Dispatcher *webhooks.Dispatcher
	Env        string
}

func NewEventsHandler(dispatcher *webhooks.Dispatcher, env string) *EventsHandler {
	return &EventsHandler{Dispatcher: dispatcher, Env: env}
}

type publishEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Publish handles POST /api/v1/events. 202 acknowledges that the ledger
// rows exist; delivery itself is asynchronous.
func (h *EventsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	key := middleware.KeyContext(r)
	if key == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.CodeCredentialInvalid, "Authentication required", nil, h.Env)
		return
	}

	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid request body", err, h.Env)
		return
	}

	eventID, deliveries, err := h.Dispatcher.EnqueueEvent(r.Context(), key.OrgID, req.EventType, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, webhooks.ErrInvalidEventType), errors.Is(err, webhooks.ErrInvalidPayload):
			problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid event", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"event_id":   eventID,
		"deliveries": deliveries,
	})
}
