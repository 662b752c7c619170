package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bistroline/gateway/internal/api/middleware"
	"github.com/bistroline/gateway/internal/api/problem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// writeJSON serializes v with the standard headers. Encoding failures after
// the header is written can only be logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("response encoding failed")
	}
}

// decodeJSON reads a request body into dst, rejecting unknown fields so
// client typos surface as 422s instead of silently ignored input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// adminOrg extracts the caller's organization from the admin token claims.
// A missing or malformed claim writes the 401 itself and reports !ok.
func adminOrg(w http.ResponseWriter, r *http.Request, env string) (uuid.UUID, bool) {
	claims := middleware.AdminClaims(r)
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Authentication required", nil, env)
		return uuid.Nil, false
	}
	orgID, err := claims.OrgUUID()
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Authentication required", err, env)
		return uuid.Nil, false
	}
	return orgID, true
}

// pathUUID parses the {id} path segment. Malformed IDs are indistinguishable
// from unknown ones to the caller.
func pathUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errors.New("malformed resource id")
	}
	return id, nil
}

// actorFrom names the authenticated principal for audit entries.
func actorFrom(r *http.Request) string {
	if claims := middleware.AdminClaims(r); claims != nil {
		return claims.Subject
	}
	if key := middleware.KeyContext(r); key != nil {
		return key.Prefix
	}
	return ""
}
