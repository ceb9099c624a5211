package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes a power token can carry.
const (
	ScopePowerOn  = "power:on"
	ScopePowerOff = "power:off"
	ScopeStatus   = "status"
)

// PowerClaims are the JWT claims for scoped power tokens.
type PowerClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// Allows reports whether the token carries scope.
func (c *PowerClaims) Allows(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// JWTIssuer creates and validates scoped power tokens.
type JWTIssuer struct {
	secret []byte
}

// NewJWTIssuer creates a new JWT issuer with the given shared secret.
func NewJWTIssuer(secret string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret)}
}

// IssuePowerToken creates a token for subject limited to scopes.
func (j *JWTIssuer) IssuePowerToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	for _, s := range scopes {
		if s != ScopePowerOn && s != ScopePowerOff && s != ScopeStatus {
			return "", fmt.Errorf("unknown scope %q", s)
		}
	}

	now := time.Now()
	claims := PowerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "opencraft",
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidatePowerToken parses and validates a power token.
func (j *JWTIssuer) ValidatePowerToken(tokenStr string) (*PowerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &PowerClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithIssuer("opencraft"))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*PowerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
