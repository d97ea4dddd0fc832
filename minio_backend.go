package contentbase

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MinIOConfig contains MinIO-specific configuration
type MinIOConfig struct {
	Endpoint        string // e.g., "localhost:9000" or "minio.example.com"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool // Whether to use HTTPS (default: false for localhost)
	Bucket          string
}

// NewMinIOClient creates an S3 client configured for MinIO
func NewMinIOClient(cfg MinIOConfig) *s3.Client {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return s3.New(s3.Options{
		BaseEndpoint: aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)),
		Region:       "us-east-1", // MinIO doesn't enforce regions, but SDK requires it
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true, // MinIO uses path-style addressing: http://host/bucket/key
	})
}

// NewMinIOBackend creates a new MinIO backend.
// MinIO is S3-compatible, so this is an S3Backend with MinIO addressing.
func NewMinIOBackend(cfg MinIOConfig) *S3Backend {
	return NewS3Backend(NewMinIOClient(cfg), cfg.Bucket)
}

// NewMinIOBackendWithLock creates a MinIO backend whose conditional writes are
// serialised through locker
func NewMinIOBackendWithLock(cfg MinIOConfig, locker Locker) *S3BackendWithLock {
	return NewS3BackendWithLock(NewMinIOBackend(cfg), locker)
}
