package contentbase

import (
	"context"
	"io"
)

// Backend is the blob store under documents, snapshots and scraper state.
// Implementations exist for the local filesystem, S3 (and S3-compatible
// MinIO) and Google Cloud Storage.
type Backend interface {
	// Object operations
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Conditional operations (for optimistic concurrency).
	// PutIfMatch with an empty expectedETag is an unconditional put.
	GetWithETag(ctx context.Context, key string) (data []byte, etag string, err error)
	PutIfMatch(ctx context.Context, key string, data []byte, expectedETag string) (string, error)
	// PutIfAbsent fails with ErrAlreadyExists when key is present
	PutIfAbsent(ctx context.Context, key string, data []byte) (string, error)
	// DeleteIfMatch fails with ErrConflict when key changed, ErrNotFound when gone
	DeleteIfMatch(ctx context.Context, key string, expectedETag string) error

	// List operations
	List(ctx context.Context, prefix string) ([]string, error)
	ListPaginated(ctx context.Context, prefix string, handler func(keys []string) error) error

	// Streaming (for content archives)
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	PutStream(ctx context.Context, key string, reader io.Reader, size int64) error

	// Health check
	Ping(ctx context.Context) error

	// Resource cleanup
	Close() error
}

// BackendConfig holds configuration for any backend
type BackendConfig struct {
	Type       string            // "s3", "minio", "gcs" or "filesystem"
	Bucket     string            // Bucket or base directory
	Region     string            // AWS region (S3 only)
	Endpoint   string            // Custom endpoint (for S3-compatible services)
	PathPrefix string            // Optional prefix for all keys
	Options    map[string]string // Backend-specific options
}

// Validate checks if the BackendConfig is valid
func (c BackendConfig) Validate() error {
	if c.Type == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"reason": "backend type is required",
		})
	}
	if c.Bucket == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Bucket",
			"reason": "bucket/base path is required",
		})
	}

	switch c.Type {
	case "s3", "minio":
		if c.Region == "" && c.Endpoint == "" {
			return WithContext(ErrInvalidConfig, map[string]interface{}{
				"field":  "Region/Endpoint",
				"reason": "S3 backend requires either Region or Endpoint",
			})
		}
	case "gcs", "filesystem":
	default:
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"value":  c.Type,
			"reason": "unknown backend type",
		})
	}

	return nil
}
