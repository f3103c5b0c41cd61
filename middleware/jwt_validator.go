package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")
)

// tokenClaims is the wire shape of the signed token
type tokenClaims struct {
	jwt.RegisteredClaims
	Name   string `json:"name"`
	Role   string `json:"role"`
	TeamID string `json:"team_id,omitempty"`
}

// HMACValidator validates HS256 tokens signed with a shared secret.
// It implements TokenValidator.
type HMACValidator struct {
	secret   []byte
	lifetime time.Duration
}

// NewHMACValidator creates a validator for the given secret. lifetime is
// used when issuing tokens, not when validating.
func NewHMACValidator(secret string, lifetime time.Duration) *HMACValidator {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &HMACValidator{
		secret:   []byte(secret),
		lifetime: lifetime,
	}
}

// ValidateToken validates a JWT token and returns claims
func (v *HMACValidator) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	parsed := &Claims{
		Sub:    claims.Subject,
		Name:   claims.Name,
		Role:   claims.Role,
		TeamID: claims.TeamID,
		Iss:    claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		parsed.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		parsed.Iat = claims.IssuedAt.Unix()
	}
	return parsed, nil
}

// IssueToken signs a token for the given identity using the configured
// lifetime.
func (v *HMACValidator) IssueToken(sub, name, role, teamID string) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.lifetime)),
		},
		Name:   name,
		Role:   role,
		TeamID: teamID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
