package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for JWT claims
	ClaimsKey contextKey = "claims"

	// TeamIDKey is the context key for team ID
	TeamIDKey contextKey = "team_id"

	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
)

// Claims represents JWT claims extracted from the token
type Claims struct {
	Sub    string `json:"sub"` // Subject (user ID)
	Name   string `json:"name"`
	Role   string `json:"role"`
	TeamID string `json:"team_id"`
	Iss    string `json:"iss"` // Issuer
	Exp    int64  `json:"exp"` // Expiration
	Iat    int64  `json:"iat"` // Issued at
}

// GetRequestIDFromContext retrieves the request ID from context. It
// falls back to the ID set by the chi RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimiddleware.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves JWT claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds JWT claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetTeamIDFromContext retrieves the team ID from context
func GetTeamIDFromContext(ctx context.Context) *uuid.UUID {
	if val := ctx.Value(TeamIDKey); val != nil {
		if teamID, ok := val.(*uuid.UUID); ok {
			return teamID
		}
	}
	return nil
}

// WithTeamID adds a team ID to the context
func WithTeamID(ctx context.Context, teamID *uuid.UUID) context.Context {
	return context.WithValue(ctx, TeamIDKey, teamID)
}

// GetUserIDFromContext retrieves the user ID from context
func GetUserIDFromContext(ctx context.Context) uuid.UUID {
	if val := ctx.Value(UserIDKey); val != nil {
		if userID, ok := val.(uuid.UUID); ok {
			return userID
		}
	}
	return uuid.Nil
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
