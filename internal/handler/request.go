// Package handler contains the JSON HTTP handlers for the cairn API.
//
// Each handler struct owns one area of the API and registers its routes on a
// shared ServeMux. Authenticated routes are wrapped by the requireUser
// middleware passed to RegisterRoutes; handlers read the caller's ID from
// request context.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/cairn/internal/auth"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/google/uuid"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Errorf(domain.ETOOLARGE, "", "Request body is too large")
		}
		return domain.Invalid("", "Request body is not valid JSON")
	}
	return nil
}

// pathUUID parses a UUID path value.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError("", name, "must be a valid ID")
	}
	return id, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError("", name, "must be a non-negative integer")
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// currentUser returns the authenticated user ID, writing a 401 when absent.
func currentUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, ok := auth.UserIDFromRequest(r)
	if !ok {
		UnauthorizedResponse(w, r, logger)
		return uuid.Nil, false
	}
	return id, true
}
