package contentbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Backend implements Backend using AWS S3 (or S3-compatible storage).
//
// Conditional writes use the If-Match / If-None-Match request headers, which
// S3 evaluates atomically. Stores that ignore these headers should be wrapped
// in S3BackendWithLock.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3Backend creates a new S3 backend
func NewS3Backend(client *s3.Client, bucket string) *S3Backend {
	return &S3Backend{
		client: client,
		bucket: bucket,
	}
}

// NewS3BackendFromConfig builds the client from the default AWS credential
// chain (env, shared config, instance role). A non-empty Endpoint switches to
// path-style addressing for S3-compatible stores.
func NewS3BackendFromConfig(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Backend(client, cfg.Bucket), nil
}

// translateS3Error maps S3 API errors onto the package sentinels
func translateS3Error(err error, key string) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrNotFound
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrNotFound
		case "PreconditionFailed", "ConditionalRequestConflict":
			return WithContext(ErrConflict, map[string]interface{}{"key": key})
		case "AccessDenied", "Forbidden":
			return ErrUnauthorized
		case "SlowDown", "ServiceUnavailable", "InternalError":
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return err
}

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), "\"")
}

// Get retrieves data for the given key from S3
func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := b.GetWithETag(ctx, key)
	return data, err
}

// Put stores data for the given key to S3
func (b *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return translateS3Error(err, key)
}

// Delete removes the object at the given key from S3
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return translateS3Error(err, key)
}

// Exists checks if an object exists at the given key in S3
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.headETag(ctx, key)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (b *S3Backend) headETag(ctx context.Context, key string) (string, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", translateS3Error(err, key)
	}
	return trimETag(head.ETag), nil
}

// GetWithETag retrieves data and its ETag for optimistic locking from S3
func (b *S3Backend) GetWithETag(ctx context.Context, key string) ([]byte, string, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", translateS3Error(err, key)
	}
	defer func() { _ = result.Body.Close() }() //nolint:errcheck // Deferred close

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", err
	}
	return data, trimETag(result.ETag), nil
}

// PutIfMatch writes only if the stored ETag still equals expectedETag
func (b *S3Backend) PutIfMatch(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if expectedETag != "" {
		input.IfMatch = aws.String(`"` + expectedETag + `"`)
	}

	out, err := b.client.PutObject(ctx, input)
	if err != nil {
		err = translateS3Error(err, key)
		// If-Match against a missing object
		if IsNotFound(err) && expectedETag != "" {
			return "", ErrNotFound
		}
		return "", err
	}
	return trimETag(out.ETag), nil
}

// PutIfAbsent creates key only if it does not exist
func (b *S3Backend) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	out, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		err = translateS3Error(err, key)
		if IsConflict(err) {
			return "", WithContext(ErrAlreadyExists, map[string]interface{}{"key": key})
		}
		return "", err
	}
	return trimETag(out.ETag), nil
}

// DeleteIfMatch deletes key only if its ETag equals expectedETag
func (b *S3Backend) DeleteIfMatch(ctx context.Context, key string, expectedETag string) error {
	current, err := b.headETag(ctx, key)
	if err != nil {
		return err
	}
	if expectedETag == "" {
		return b.Delete(ctx, key)
	}
	if current != expectedETag {
		return WithContext(ErrConflict, map[string]interface{}{
			"key":      key,
			"expected": expectedETag,
			"actual":   current,
		})
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(b.bucket),
		Key:     aws.String(key),
		IfMatch: aws.String(`"` + expectedETag + `"`),
	})
	return translateS3Error(err, key)
}

// List returns all keys with the given prefix from S3
func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.ListPaginated(ctx, prefix, func(batch []string) error {
		keys = append(keys, batch...)
		return nil
	})
	return keys, err
}

// ListPaginated streams keys with the given prefix in batches from S3
func (b *S3Backend) ListPaginated(ctx context.Context, prefix string, handler func(keys []string) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return translateS3Error(err, prefix)
		}
		if len(output.Contents) == 0 {
			continue
		}

		keys := make([]string, 0, len(output.Contents))
		for _, obj := range output.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if err := handler(keys); err != nil {
			return err
		}
	}

	return nil
}

// GetStream returns a reader for streaming large objects from S3
func (b *S3Backend) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateS3Error(err, key)
	}
	return result.Body, nil
}

// PutStream writes large objects from a stream to S3
func (b *S3Backend) PutStream(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
	})
	return translateS3Error(err, key)
}

// Ping checks if the S3 backend is accessible and operational
func (b *S3Backend) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	return translateS3Error(err, b.bucket)
}

// Close releases any resources held by the S3 backend
func (b *S3Backend) Close() error {
	// S3 client doesn't need explicit closing
	return nil
}
