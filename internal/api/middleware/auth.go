package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/bistroline/gateway/internal/api/problem"
	"github.com/bistroline/gateway/internal/auth"
	"github.com/bistroline/gateway/internal/domain/apikeys"
)

const adminClaimsKey contextKey = "admin_claims"
const keyAuthKey contextKey = "api_key_auth"

// AdminAuth guards the management API with operator JWTs. The org scope for
// every downstream query comes from the validated claims.
func AdminAuth(manager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Unauthorized", err, env)
				return
			}
			claims, err := manager.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Unauthorized", err, env)
				return
			}
			if _, err := claims.OrgUUID(); err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeUnauthorized, "Unauthorized", err, env)
				return
			}

			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaims returns the validated operator claims, or nil outside
// AdminAuth-wrapped handlers.
func AdminClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(adminClaimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// KeyVerifier is the slice of the API key service KeyAuth needs.
type KeyVerifier interface {
	Verify(ctx context.Context, presented string) (apikeys.AuthContext, error)
}

// KeyAuth authenticates callers presenting issued API keys
// ("Authorization: Bearer live_…"). Revoked credentials get a distinct
// problem code so integrators can tell mistyped keys from rotated ones.
func KeyAuth(verifier KeyVerifier, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.CodeCredentialInvalid, "Unauthorized", err, env)
				return
			}

			authCtx, err := verifier.Verify(r.Context(), token)
			if err != nil {
				code := problem.CodeCredentialInvalid
				if errors.Is(err, apikeys.ErrCredentialRevoked) {
					code = problem.CodeCredentialRevoked
				}
				problem.Write(w, r, http.StatusUnauthorized, code, "Unauthorized", err, env)
				return
			}

			ctx := context.WithValue(r.Context(), keyAuthKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyContext returns the verified credential context, or nil outside
// KeyAuth-wrapped handlers.
func KeyContext(r *http.Request) *apikeys.AuthContext {
	if authCtx, ok := r.Context().Value(keyAuthKey).(apikeys.AuthContext); ok {
		return &authCtx
	}
	return nil
}
