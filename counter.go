package contentbase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is an atomic integer stored in Redis. Download sessions use one per
// user to track how many are open across processes.
type Counter struct {
	redis   *redis.Client
	key     string
	logger  Logger
	metrics Metrics
}

// NewCounter creates a counter stored at key
func NewCounter(redis *redis.Client, key string, logger Logger, metrics Metrics) *Counter {
	return &Counter{
		redis:   redis,
		key:     key,
		logger:  loggerOrNoOp(logger),
		metrics: metricsOrNoOp(metrics),
	}
}

// Key returns the Redis key of the counter
func (c *Counter) Key() string {
	return c.key
}

// Increment adds one and returns the new value
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	return c.IncrementBy(ctx, 1)
}

// Decrement subtracts one and returns the new value
func (c *Counter) Decrement(ctx context.Context) (int64, error) {
	return c.IncrementBy(ctx, -1)
}

// IncrementBy adds delta and returns the new value
func (c *Counter) IncrementBy(ctx context.Context, delta int64) (int64, error) {
	if c.redis == nil {
		return 0, fmt.Errorf("redis not available")
	}

	val, err := c.redis.IncrBy(ctx, c.key, delta).Result()
	if err != nil {
		c.metrics.Increment(MetricCounterError, "operation", "increment", "key", c.key)
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	c.metrics.Increment(MetricCounterIncrement, "key", c.key)
	return val, nil
}

// Get returns the current value; a missing counter is 0
func (c *Counter) Get(ctx context.Context) (int64, error) {
	if c.redis == nil {
		return 0, fmt.Errorf("redis not available")
	}

	val, err := c.redis.Get(ctx, c.key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		c.metrics.Increment(MetricCounterError, "operation", "get", "key", c.key)
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, WithContext(ErrInvalidData, map[string]interface{}{"key": c.key, "value": val})
	}
	return intVal, nil
}

// Set overwrites the value. Only for repair after a crash left it wrong.
func (c *Counter) Set(ctx context.Context, value int64) error {
	if c.redis == nil {
		return fmt.Errorf("redis not available")
	}

	if err := c.redis.Set(ctx, c.key, value, redis.KeepTTL).Err(); err != nil {
		c.metrics.Increment(MetricCounterError, "operation", "set", "key", c.key)
		return fmt.Errorf("failed to set counter: %w", err)
	}

	c.logger.Info("counter value set", "key", c.key, "value", value)
	return nil
}

// Expire makes the counter disappear after ttl unless touched again. A
// counter whose owners crashed without decrementing resets itself this way.
func (c *Counter) Expire(ctx context.Context, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis not available")
	}

	if err := c.redis.Expire(ctx, c.key, ttl).Err(); err != nil {
		c.metrics.Increment(MetricCounterError, "operation", "expire", "key", c.key)
		return fmt.Errorf("failed to expire counter: %w", err)
	}
	return nil
}

// Delete removes the counter
func (c *Counter) Delete(ctx context.Context) error {
	if c.redis == nil {
		return fmt.Errorf("redis not available")
	}

	if err := c.redis.Del(ctx, c.key).Err(); err != nil {
		c.metrics.Increment(MetricCounterError, "operation", "delete", "key", c.key)
		return fmt.Errorf("failed to delete counter: %w", err)
	}

	c.logger.Debug("counter deleted", "key", c.key)
	return nil
}
