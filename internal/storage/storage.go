// Package storage holds generated files such as account data exports.
//
// Two backends exist: Local writes to disk and hands out HMAC-signed download
// links served by its own handler; ObjectStore targets any S3-compatible
// service (Cloudflare R2, MinIO, AWS S3) and returns presigned GET URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Storage is a flat key/value blob store.
type Storage interface {
	// Put writes data at key. Existing objects are replaced only with opts.Overwrite.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a download link that stops working after expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures a write.
type PutOptions struct {
	ContentType string
	MaxSize     int64 // 0 means unlimited
	Overwrite   bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// Providers.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
	ProviderR2    = "r2"
)

// Config selects and configures a backend.
type Config struct {
	Provider string
	Local    LocalConfig
	Object   ObjectConfig
}

// New builds the backend named by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Provider {
	case "", ProviderLocal:
		return NewLocal(cfg.Local, logger)
	case ProviderS3, ProviderR2:
		return NewObjectStore(cfg.Object, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ExportKey returns a fresh key for a user's data export.
// Format: exports/{userID}/{uuid}.json
func ExportKey(userID uuid.UUID) string {
	return fmt.Sprintf("exports/%s/%s.json", userID, uuid.New())
}
