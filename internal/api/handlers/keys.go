package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bistroline/gateway/internal/api/problem"
	"github.com/bistroline/gateway/internal/audit"
	"github.com/bistroline/gateway/internal/domain/apikeys"
)

// KeysHandler serves credential lifecycle operations for operators.
type KeysHandler struct {
	Service     *apikeys.Service
	AuditLogger *audit.Logger
	Env         string
}

func NewKeysHandler(service *apikeys.Service, auditLogger *audit.Logger, env string) *KeysHandler {
	return &KeysHandler{Service: service, AuditLogger: auditLogger, Env: env}
}

type createKeyRequest struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

type keyResponse struct {
	ID          string     `json:"id"`
	Prefix      string     `json:"prefix"`
	Name        string     `json:"name"`
	Environment string     `json:"environment"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issued_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	// Secret is present only in the Create response. It is never
	// retrievable afterward.
	Secret string `json:"secret,omitempty"`
}

func keyToResponse(key *apikeys.Key, secret string) keyResponse {
	return keyResponse{
		ID:          key.ID.String(),
		Prefix:      key.Prefix,
		Name:        key.Name,
		Environment: string(key.Environment),
		Status:      string(key.Status),
		IssuedAt:    key.IssuedAt,
		RevokedAt:   key.RevokedAt,
		UsageCount:  key.UsageCount,
		LastUsedAt:  key.LastUsedAt,
		Secret:      secret,
	}
}

// Create handles POST /api/v1/keys.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid request body", err, h.Env)
		return
	}

	key, secret, err := h.Service.Issue(r.Context(), apikeys.IssueParams{
		OrgID:       orgID,
		Name:        strings.TrimSpace(req.Name),
		Environment: apikeys.Environment(strings.ToUpper(req.Environment)),
	})
	if err != nil {
		h.AuditLogger.Failure(r.Context(), "api_key.issue", actorFrom(r), audit.ClientIP(r), map[string]string{"error": err.Error()})
		switch {
		case errors.Is(err, apikeys.ErrIssuanceRateLimited):
			w.Header().Set("Retry-After", "3600")
			problem.Write(w, r, http.StatusTooManyRequests, problem.CodeIssuanceRateLimited, "Key issuance rate limited", err, h.Env)
		case errors.Is(err, apikeys.ErrCredentialInvalid):
			problem.Write(w, r, http.StatusUnprocessableEntity, problem.CodeValidationFailed, "Invalid key parameters", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		}
		return
	}

	h.AuditLogger.Success(r.Context(), "api_key.issue", actorFrom(r), "api_key", key.ID.String(), audit.ClientIP(r), map[string]string{
		"prefix":      key.Prefix,
		"environment": string(key.Environment),
	})
	writeJSON(w, r, http.StatusCreated, keyToResponse(key, secret))
}

// List handles GET /api/v1/keys.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	keys, err := h.Service.List(r.Context(), orgID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		return
	}

	items := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		items = append(items, keyToResponse(key, ""))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// Revoke handles POST /api/v1/keys/{id}/revoke. The lookup is org-scoped
// before the revocation so one tenant cannot probe or disable another's
// credentials.
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	orgID, ok := adminOrg(w, r, h.Env)
	if !ok {
		return
	}

	keyID, err := pathUUID(r)
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.CodeNotFound, "API key not found", err, h.Env)
		return
	}

	key, err := h.Service.Get(r.Context(), keyID)
	if err != nil || key.OrgID != orgID {
		problem.Write(w, r, http.StatusNotFound, problem.CodeNotFound, "API key not found", err, h.Env)
		return
	}

	if err := h.Service.Revoke(r.Context(), keyID); err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Server error", err, h.Env)
		return
	}

	h.AuditLogger.Success(r.Context(), "api_key.revoke", actorFrom(r), "api_key", keyID.String(), audit.ClientIP(r), map[string]string{
		"prefix": key.Prefix,
	})
	writeJSON(w, r, http.StatusOK, map[string]any{})
}
