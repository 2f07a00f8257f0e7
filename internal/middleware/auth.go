// Package middleware contains HTTP middleware for the cairn API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using Stack.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/cairn/internal/auth"
	"github.com/DukeRupert/cairn/internal/handler"
	"github.com/google/uuid"
)

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware authenticates API requests by bearer token.
type AuthMiddleware struct {
	tokens TokenVerifier
	logger *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(tokens TokenVerifier, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireUser is middleware that requires a valid bearer token.
//
// On success the user ID is stored in the request context and can be read
// with auth.UserID. Otherwise it answers 401 with a JSON error body and the
// next handler is not called.
//
// Flow:
//
//	Request -> RequireUser -> Handler
//	           |
//	           +-> Read Authorization header
//	           +-> Verify token (signature, expiry, subject)
//	           +-> Set user ID in context
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			if !errors.Is(err, auth.ErrMissingToken) {
				m.logger.Info("auth failure: malformed authorization header", "path", r.URL.Path)
			}
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		userID, err := m.tokens.Verify(token)
		if err != nil {
			m.logger.Info("auth failure: token rejected", "path", r.URL.Path, "error", err)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		noteUser(r.Context(), userID)
		ctx := auth.SetUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(authMw.RequireUser, apiLimiter.Limit)
//	mux.Handle("GET /api/goals", stack(goalsHandler))
//
// This is equivalent to:
//
//	mux.Handle("GET /api/goals", authMw.RequireUser(apiLimiter.Limit(goalsHandler)))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var _ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
