// Package auth holds the authenticated caller in request context and issues
// and verifies the bearer tokens that identify them.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// userIDContextKey is the key used to store the authenticated user ID.
	userIDContextKey contextKey = "user_id"
)

// UserID retrieves the authenticated user ID from the context.
//
// The second return value is false if no user is authenticated.
//
// Usage:
//
//	userID, ok := auth.UserID(r.Context())
//	if !ok {
//	    // Handle unauthenticated request
//	}
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// UserIDFromRequest is a convenience wrapper around UserID.
func UserIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	return UserID(r.Context())
}

// SetUserID stores the authenticated user ID in the context.
//
// This is called by the authentication middleware after a token verifies.
func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, id)
}
