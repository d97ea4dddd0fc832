package contentbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackend implements Backend using Google Cloud Storage.
// Object generations serve as ETags; every conditional write is a GCS
// precondition and therefore atomic.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

// GCSConfig contains GCS-specific configuration
type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string // Path to service account JSON file (optional, uses ADC if empty)
	Endpoint        string // Emulator endpoint (optional)
}

// NewGCSBackend creates a new GCS backend
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBackend{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(key)
}

func generationETag(gen int64) string {
	return strconv.FormatInt(gen, 10)
}

func parseGenerationETag(etag string) (int64, error) {
	gen, err := strconv.ParseInt(etag, 10, 64)
	if err != nil {
		return 0, WithContext(ErrInvalidData, map[string]interface{}{
			"etag":   etag,
			"reason": "not a GCS generation",
		})
	}
	return gen, nil
}

// translateGCSError maps storage and googleapi errors onto the package sentinels
func translateGCSError(err error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusPreconditionFailed:
			return WithContext(ErrConflict, map[string]interface{}{"key": key})
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrUnauthorized
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return err
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := b.GetWithETag(ctx, key)
	return data, err
}

func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.write(ctx, b.object(key), key, data)
	return err
}

func (b *GCSBackend) write(ctx context.Context, obj *storage.ObjectHandle, key string, data []byte) (string, error) {
	writer := obj.NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", translateGCSError(err, key)
	}
	if err := writer.Close(); err != nil {
		return "", translateGCSError(err, key)
	}
	return generationETag(writer.Attrs().Generation), nil
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	return translateGCSError(b.object(key).Delete(ctx), key)
}

func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, translateGCSError(err, key)
	}
	return true, nil
}

// GetWithETag reads the object and reports its generation as ETag
func (b *GCSBackend) GetWithETag(ctx context.Context, key string) ([]byte, string, error) {
	reader, err := b.object(key).NewReader(ctx)
	if err != nil {
		return nil, "", translateGCSError(err, key)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", err
	}
	return data, generationETag(reader.Attrs.Generation), nil
}

// PutIfMatch writes with a GenerationMatch precondition
func (b *GCSBackend) PutIfMatch(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	if expectedETag == "" {
		return b.write(ctx, b.object(key), key, data)
	}

	gen, err := parseGenerationETag(expectedETag)
	if err != nil {
		return "", err
	}

	etag, err := b.write(ctx, b.object(key).If(storage.Conditions{GenerationMatch: gen}), key, data)
	if IsConflict(err) {
		// A 412 is also returned when the object was deleted
		exists, existsErr := b.Exists(ctx, key)
		if existsErr == nil && !exists {
			return "", ErrNotFound
		}
	}
	return etag, err
}

// PutIfAbsent writes with a DoesNotExist precondition
func (b *GCSBackend) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	etag, err := b.write(ctx, b.object(key).If(storage.Conditions{DoesNotExist: true}), key, data)
	if IsConflict(err) {
		return "", WithContext(ErrAlreadyExists, map[string]interface{}{"key": key})
	}
	return etag, err
}

// DeleteIfMatch deletes with a GenerationMatch precondition
func (b *GCSBackend) DeleteIfMatch(ctx context.Context, key string, expectedETag string) error {
	if expectedETag == "" {
		return b.Delete(ctx, key)
	}

	gen, err := parseGenerationETag(expectedETag)
	if err != nil {
		return err
	}
	return translateGCSError(b.object(key).If(storage.Conditions{GenerationMatch: gen}).Delete(ctx), key)
}

func (b *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.ListPaginated(ctx, prefix, func(batch []string) error {
		keys = append(keys, batch...)
		return nil
	})
	return keys, err
}

func (b *GCSBackend) ListPaginated(ctx context.Context, prefix string, handler func(keys []string) error) error {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	batch := make([]string, 0, DefaultListPaginatedSize)

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return translateGCSError(err, prefix)
		}

		batch = append(batch, attrs.Name)
		if len(batch) >= DefaultListPaginatedSize {
			if err := handler(batch); err != nil {
				return err
			}
			batch = make([]string, 0, DefaultListPaginatedSize)
		}
	}

	if len(batch) > 0 {
		return handler(batch)
	}
	return nil
}

func (b *GCSBackend) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := b.object(key).NewReader(ctx)
	if err != nil {
		return nil, translateGCSError(err, key)
	}
	return reader, nil
}

func (b *GCSBackend) PutStream(ctx context.Context, key string, reader io.Reader, size int64) error {
	writer := b.object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, io.LimitReader(reader, size)); err != nil {
		writer.Close()
		return translateGCSError(err, key)
	}
	return translateGCSError(writer.Close(), key)
}

func (b *GCSBackend) Ping(ctx context.Context) error {
	_, err := b.client.Bucket(b.bucket).Attrs(ctx)
	return translateGCSError(err, b.bucket)
}

func (b *GCSBackend) Close() error {
	return b.client.Close()
}
