// Package service contains the business logic layer.
//
// Services validate input, enforce quotas and ownership, and translate store
// errors into domain errors. Every service takes its collaborators through its
// constructor; the clock is a field so tests can pin time.
package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
)

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// isNotFound reports whether a store error means the row does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// goalMetadata builds the JSON metadata attached to goal-scoped notifications.
// The goal_id key is what per-goal throttles match on.
func goalMetadata(goalID uuid.UUID, extra map[string]any) json.RawMessage {
	meta := map[string]any{"goal_id": goalID.String()}
	for k, v := range extra {
		meta[k] = v
	}
	return mustJSON(meta)
}

// mustJSON marshals values that are known to be encodable.
func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
