package contentbase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultCacheTTL is used when neither the call nor the store sets a TTL
const DefaultCacheTTL = 10 * time.Minute

// cacheEnvelope distinguishes a cached absent value from a miss
type cacheEnvelope struct {
	Present bool            `json:"present"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// ComputeFunc produces the value for a cache miss. Returning nil caches the
// absence of a value.
type ComputeFunc[T any] func(ctx context.Context) (*T, error)

// CacheStore is a cache-aside store of T values.
//
// Absent results are cached like values, so repeated lookups of keys that
// do not exist stop reaching compute until the TTL runs out. When a Locker is
// configured, a miss is computed under the lock cache:{name}:{key}; callers
// that waited re-check the cache and find the winner's value instead of
// computing again.
//
// Provider failures are logged and treated as misses: the cache never makes a
// lookup fail that compute could answer.
type CacheStore[T any] struct {
	name     string
	provider CacheProvider
	locker   Locker
	ttl      time.Duration
	logger   Logger
	metrics  Metrics
}

// NewCacheStore creates a store. name namespaces its keys in the provider.
func NewCacheStore[T any](name string, provider CacheProvider) *CacheStore[T] {
	return &CacheStore[T]{
		name:     name,
		provider: provider,
		ttl:      DefaultCacheTTL,
		logger:   &NoOpLogger{},
		metrics:  &NoOpMetrics{},
	}
}

// WithLocker enables stampede protection through locker
func (c *CacheStore[T]) WithLocker(locker Locker) *CacheStore[T] {
	c.locker = locker
	return c
}

// WithTTL sets the store default TTL
func (c *CacheStore[T]) WithTTL(ttl time.Duration) *CacheStore[T] {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

// WithLogger sets the logger
func (c *CacheStore[T]) WithLogger(logger Logger) *CacheStore[T] {
	c.logger = loggerOrNoOp(logger)
	return c
}

// WithMetrics sets the metrics collector
func (c *CacheStore[T]) WithMetrics(metrics Metrics) *CacheStore[T] {
	c.metrics = metricsOrNoOp(metrics)
	return c
}

func (c *CacheStore[T]) key(key string) string {
	return c.name + ":" + key
}

// lookup reads key. found is false on a miss or a provider failure.
func (c *CacheStore[T]) lookup(ctx context.Context, key string) (value *T, found bool) {
	raw, ok, err := c.provider.Get(ctx, c.key(key))
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", "cache", c.name, "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	value, err = c.decode(raw)
	if err != nil {
		c.logger.Warn("cache entry unreadable, treating as miss", "cache", c.name, "key", key, "error", err)
		return nil, false
	}
	return value, true
}

func (c *CacheStore[T]) decode(raw []byte) (*T, error) {
	var env cacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if !env.Present {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(env.Value, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *CacheStore[T]) encode(value *T) ([]byte, error) {
	env := cacheEnvelope{Present: value != nil}
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache value: %w", err)
		}
		env.Value = raw
	}
	return json.Marshal(env)
}

// Get returns the cached value of key, computing and caching it on a miss.
// A nil result with a nil error is a cached absence.
func (c *CacheStore[T]) Get(ctx context.Context, key string, compute ComputeFunc[T]) (*T, error) {
	if value, ok := c.lookup(ctx, key); ok {
		c.hit(value)
		return value, nil
	}

	if c.locker != nil {
		lock, err := c.locker.Enter(ctx, "cache:"+c.key(key))
		if err != nil {
			return nil, err
		}
		defer lock.Release()

		// Somebody may have computed it while we waited
		if value, ok := c.lookup(ctx, key); ok {
			c.hit(value)
			return value, nil
		}
	}

	c.metrics.Increment(MetricCacheMisses, "cache", c.name)
	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.metrics.Increment(MetricCacheComputed, "cache", c.name)

	if err := c.Set(ctx, key, value, 0); err != nil {
		c.logger.Warn("cache write failed", "cache", c.name, "key", key, "error", err)
	}
	return value, nil
}

func (c *CacheStore[T]) hit(value *T) {
	c.metrics.Increment(MetricCacheHits, "cache", c.name)
	if value == nil {
		c.metrics.Increment(MetricCacheNegatives, "cache", c.name)
	}
}

// Set caches value (nil caches absence). A zero ttl uses the store default.
func (c *CacheStore[T]) Set(ctx context.Context, key string, value *T, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := c.encode(value)
	if err != nil {
		return err
	}
	return c.provider.Set(ctx, c.key(key), raw, ttl)
}

// Delete evicts key and returns the value it held. Deleting a missing key, or
// one that cached an absence, returns nil.
func (c *CacheStore[T]) Delete(ctx context.Context, key string) (*T, error) {
	raw, ok, err := c.provider.Delete(ctx, c.key(key))
	if err != nil || !ok {
		return nil, err
	}
	value, err := c.decode(raw)
	if err != nil {
		c.logger.Warn("evicted cache entry unreadable", "cache", c.name, "key", key, "error", err)
		return nil, nil
	}
	return value, nil
}
