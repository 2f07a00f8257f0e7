package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrKeyExists    = errors.New("object already exists")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrTooLarge     = errors.New("object exceeds maximum size")
	ErrAccessDenied = errors.New("access denied")

	// ErrBadSignature is returned when a signed local link is forged or expired.
	ErrBadSignature = errors.New("invalid or expired link")
)

// Error records the operation and key that failed.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opErr(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}

// IsNotFound reports whether err means the object is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
