package contentbase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockInfo describes one lock key held in Redis
type LockInfo struct {
	Key        string        // The resource key being locked
	LockKey    string        // The Redis key for the lock
	Token      string        // Owner token
	TTL        time.Duration // Remaining TTL
	AcquiredAt time.Time     // Parsed from the token; zero if unparseable
}

// Age returns how long the lock has been held as of now
func (i LockInfo) Age(now time.Time) time.Duration {
	if i.AcquiredAt.IsZero() {
		return 0
	}
	return now.Sub(i.AcquiredAt)
}

// LockManager inspects and repairs the lock keys written by RedisLocker.
// It is an operator tool; application code should only use Locker.
type LockManager struct {
	redis     *redis.Client
	keyPrefix string
	logger    Logger
	metrics   Metrics
}

// NewLockManager creates a manager for locks under keyPrefix
func NewLockManager(client *redis.Client, keyPrefix string, logger Logger, metrics Metrics) *LockManager {
	return &LockManager{
		redis:     client,
		keyPrefix: keyPrefix,
		logger:    loggerOrNoOp(logger),
		metrics:   metricsOrNoOp(metrics),
	}
}

func (lm *LockManager) lockKey(resourceKey string) string {
	return fmt.Sprintf("%s:lock:%s", lm.keyPrefix, resourceKey)
}

// ListLocks returns every live lock under the prefix
func (lm *LockManager) ListLocks(ctx context.Context) ([]LockInfo, error) {
	if lm.redis == nil {
		return nil, fmt.Errorf("redis not available")
	}

	prefix := lm.lockKey("")
	var locks []LockInfo
	var cursor uint64

	for {
		keys, next, err := lm.redis.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock keys: %w", err)
		}

		for _, lockKey := range keys {
			info, err := lm.inspect(ctx, strings.TrimPrefix(lockKey, prefix), lockKey)
			if err != nil {
				if !IsNotFound(err) {
					lm.logger.Warn("failed to inspect lock", "key", lockKey, "error", err)
				}
				continue
			}
			locks = append(locks, *info)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	lm.metrics.Gauge(MetricLockActive, float64(len(locks)))
	return locks, nil
}

// GetLockInfo returns the lock on resourceKey, or ErrLockNotFound
func (lm *LockManager) GetLockInfo(ctx context.Context, resourceKey string) (*LockInfo, error) {
	if lm.redis == nil {
		return nil, fmt.Errorf("redis not available")
	}

	info, err := lm.inspect(ctx, resourceKey, lm.lockKey(resourceKey))
	if IsNotFound(err) {
		return nil, WithContext(ErrLockNotFound, map[string]interface{}{"key": resourceKey})
	}
	return info, err
}

func (lm *LockManager) inspect(ctx context.Context, resourceKey, lockKey string) (*LockInfo, error) {
	token, err := lm.redis.Get(ctx, lockKey).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock value: %w", err)
	}

	ttl, err := lm.redis.PTTL(ctx, lockKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lock ttl: %w", err)
	}
	if ttl == -2 {
		return nil, ErrNotFound
	}

	acquiredAt, _ := parseLockToken(token)
	return &LockInfo{
		Key:        resourceKey,
		LockKey:    lockKey,
		Token:      token,
		TTL:        ttl,
		AcquiredAt: acquiredAt,
	}, nil
}

// CleanupOrphanedLocks deletes locks held for longer than minAge.
//
// Healthy holders renew their key, so a lock that keeps living past minAge is
// either a very long critical section or a holder that stopped releasing
// without crashing. Pick minAge well above the longest expected hold time.
func (lm *LockManager) CleanupOrphanedLocks(ctx context.Context, minAge time.Duration) (int, error) {
	locks, err := lm.ListLocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list locks: %w", err)
	}

	removed := 0
	now := time.Now()

	for _, lock := range locks {
		if lock.AcquiredAt.IsZero() || lock.Age(now) < minAge {
			continue
		}

		// Only delete the exact token we inspected
		deleted, err := releaseScript.Run(ctx, lm.redis, []string{lock.LockKey}, lock.Token).Int()
		if err != nil {
			lm.logger.Warn("failed to delete orphaned lock", "key", lock.Key, "error", err)
			continue
		}
		if deleted > 0 {
			removed++
			lm.logger.Info("removed orphaned lock", "key", lock.Key, "age", lock.Age(now))
			lm.metrics.Increment(MetricLockOrphaned)
		}
	}

	if removed > 0 {
		lm.logger.Info("orphaned lock cleanup completed", "removed", removed, "min_age", minAge)
		lm.metrics.Increment(MetricLockCleanup)
	}
	return removed, nil
}

// ForceRelease deletes a lock regardless of owner. The current holder will see
// its Lost channel close at the next renewal.
func (lm *LockManager) ForceRelease(ctx context.Context, resourceKey string) error {
	if lm.redis == nil {
		return fmt.Errorf("redis not available")
	}

	deleted, err := lm.redis.Del(ctx, lm.lockKey(resourceKey)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	if deleted == 0 {
		return WithContext(ErrLockNotFound, map[string]interface{}{"key": resourceKey})
	}

	lm.logger.Info("forcefully released lock", "key", resourceKey)
	lm.metrics.Increment(MetricLockForceRelease)
	return nil
}
