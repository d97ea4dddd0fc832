package contentbase

import (
	"context"
	"io"
	"time"
)

// InstrumentedBackend wraps a Backend and records the count, latency and
// errors of every call, tagged with the operation name. Not-found and
// conflict results are expected outcomes and are not counted as errors.
type InstrumentedBackend struct {
	Backend
	metrics Metrics
}

// NewInstrumentedBackend wraps backend
func NewInstrumentedBackend(backend Backend, metrics Metrics) *InstrumentedBackend {
	return &InstrumentedBackend{Backend: backend, metrics: metricsOrNoOp(metrics)}
}

// Unwrap returns the wrapped backend
func (b *InstrumentedBackend) Unwrap() Backend {
	return b.Backend
}

func (b *InstrumentedBackend) observe(op string, start time.Time, err error) {
	b.metrics.Timing(MetricBackendLatency, time.Since(start), "op", op)
	b.metrics.Increment(MetricBackendOps, "op", op)
	if err != nil && !IsNotFound(err) && !IsConflict(err) {
		b.metrics.Increment(MetricBackendErrors, "op", op)
	}
}

func (b *InstrumentedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := b.Backend.Get(ctx, key)
	b.observe("get", start, err)
	return data, err
}

func (b *InstrumentedBackend) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := b.Backend.Put(ctx, key, data)
	b.observe("put", start, err)
	return err
}

func (b *InstrumentedBackend) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := b.Backend.Delete(ctx, key)
	b.observe("delete", start, err)
	return err
}

func (b *InstrumentedBackend) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := b.Backend.Exists(ctx, key)
	b.observe("exists", start, err)
	return ok, err
}

func (b *InstrumentedBackend) GetWithETag(ctx context.Context, key string) ([]byte, string, error) {
	start := time.Now()
	data, etag, err := b.Backend.GetWithETag(ctx, key)
	b.observe("get", start, err)
	return data, etag, err
}

func (b *InstrumentedBackend) PutIfMatch(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	start := time.Now()
	etag, err := b.Backend.PutIfMatch(ctx, key, data, expectedETag)
	b.observe("put", start, err)
	return etag, err
}

func (b *InstrumentedBackend) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	start := time.Now()
	etag, err := b.Backend.PutIfAbsent(ctx, key, data)
	b.observe("create", start, err)
	return etag, err
}

func (b *InstrumentedBackend) DeleteIfMatch(ctx context.Context, key string, expectedETag string) error {
	start := time.Now()
	err := b.Backend.DeleteIfMatch(ctx, key, expectedETag)
	b.observe("delete", start, err)
	return err
}

func (b *InstrumentedBackend) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := b.Backend.List(ctx, prefix)
	b.observe("list", start, err)
	return keys, err
}

func (b *InstrumentedBackend) ListPaginated(ctx context.Context, prefix string, handler func(keys []string) error) error {
	start := time.Now()
	err := b.Backend.ListPaginated(ctx, prefix, handler)
	b.observe("list", start, err)
	return err
}

func (b *InstrumentedBackend) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	r, err := b.Backend.GetStream(ctx, key)
	b.observe("get_stream", start, err)
	return r, err
}

func (b *InstrumentedBackend) PutStream(ctx context.Context, key string, reader io.Reader, size int64) error {
	start := time.Now()
	err := b.Backend.PutStream(ctx, key, reader, size)
	b.observe("put_stream", start, err)
	return err
}
