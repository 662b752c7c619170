// Package auth issues and validates the operator bearer tokens that guard
// the management API. The signing key is HKDF-derived from the gateway
// master secret, never stored on its own.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carry the operator identity plus the organization the token is
// scoped to. Every management API query is bounded by OrgID.
type Claims struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// OrgUUID parses the org claim.
func (c *Claims) OrgUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.OrgID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

type JWTManager struct {
	key    []byte
	expiry time.Duration
	issuer string
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

func NewJWTManager(key []byte, expiry time.Duration, issuer string) *JWTManager {
	return &JWTManager{
		key:    key,
		expiry: expiry,
		issuer: issuer,
	}
}

func (m *JWTManager) Generate(subject string, orgID uuid.UUID, role string) (string, error) {
	if subject == "" || role == "" || orgID == uuid.Nil {
		return "", ErrInvalidToken
	}

	now := time.Now()
	claims := &Claims{
		OrgID: orgID.String(),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromHeader extracts the bearer token from an Authorization header.
func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
