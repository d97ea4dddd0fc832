package contentbase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL is the Redis key TTL of a held lock. Holders renew it every
// TTL/3 for as long as they hold the lock.
const DefaultLockTTL = 30 * time.Second

// minLockTTL keeps the renewal interval (TTL/3) positive
const minLockTTL = 3 * time.Millisecond

// releaseTimeout bounds the Redis round trips made by Release
const releaseTimeout = 5 * time.Second

var (
	// Delete only if we still own the lock
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Extend only if we still own the lock
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisLocker is a Locker shared by every process connected to the same Redis.
//
// Callers in one process first queue on a local MemoryLocker, so same-process
// contention stays FIFO and only one caller per process competes in Redis.
// Ownership in Redis is a SET NX PX key holding a unique token. Waiters sleep
// until the holder publishes a release notification, or until the key's TTL
// runs out (holder crashed). A key freed by expiry can be taken by any
// process regardless of who waited longest.
//
// Holders renew the key every TTL/3. If a renewal finds the key gone or owned
// by someone else, the lock's Lost channel is closed and a warning is logged:
// another process may now be inside the critical section.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	local     *MemoryLocker
	logger    Logger
	metrics   Metrics
}

// NewRedisLocker creates a distributed locker. keyPrefix namespaces the Redis
// keys: locks live at {prefix}:lock:{key}.
func NewRedisLocker(client *redis.Client, keyPrefix string) *RedisLocker {
	return &RedisLocker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       DefaultLockTTL,
		local:     NewMemoryLocker(),
		logger:    &NoOpLogger{},
		metrics:   &NoOpMetrics{},
	}
}

// WithTTL overrides the lock key TTL. Non-positive values are ignored and
// values below 3ms are raised to 3ms.
func (l *RedisLocker) WithTTL(ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		return l
	}
	l.ttl = max(ttl, minLockTTL)
	return l
}

// WithLogger sets the logger
func (l *RedisLocker) WithLogger(logger Logger) *RedisLocker {
	l.logger = loggerOrNoOp(logger)
	return l
}

// WithMetrics sets the metrics collector
func (l *RedisLocker) WithMetrics(metrics Metrics) *RedisLocker {
	l.metrics = metricsOrNoOp(metrics)
	l.local.WithMetrics(metrics)
	return l
}

func (l *RedisLocker) lockKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", l.keyPrefix, key)
}

func (l *RedisLocker) releaseChannel(key string) string {
	return fmt.Sprintf("%s:unlock:%s", l.keyPrefix, key)
}

// newLockToken returns "{unix nanos}:{uuid}". The timestamp lets LockManager
// report lock age.
func newLockToken() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10) + ":" + uuid.NewString()
}

// parseLockToken extracts the acquisition time from a lock token
func parseLockToken(token string) (time.Time, bool) {
	nanos, _, _ := strings.Cut(token, ":")
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// Enter blocks until this process owns key across the cluster, or ctx is done
func (l *RedisLocker) Enter(ctx context.Context, key string) (Lock, error) {
	if err := validateLockKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	local, err := l.local.Enter(ctx, key)
	if err != nil {
		return nil, err
	}

	lockKey := l.lockKey(key)
	token := newLockToken()

	if err := l.acquire(ctx, key, lockKey, token); err != nil {
		local.Release()
		l.metrics.Increment(MetricLockFailed, "locker", "redis")
		return nil, err
	}

	l.metrics.Timing(MetricLockWaitTime, time.Since(start), "locker", "redis")
	l.metrics.Increment(MetricLockAcquired, "locker", "redis")

	hbCtx, stop := context.WithCancel(context.Background())
	lock := &redisLock{
		locker:  l,
		key:     key,
		lockKey: lockKey,
		token:   token,
		local:   local,
		lost:    make(chan struct{}),
		stop:    stop,
		done:    make(chan struct{}),
	}
	go lock.heartbeat(hbCtx)

	return lock, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, lockKey, token string) error {
	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if ok {
		return nil
	}

	// Subscribe before retrying so a release between the two SETNX calls is not missed
	sub := l.client.Subscribe(ctx, l.releaseChannel(key))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to lock release %s: %w", key, err)
	}
	released := sub.Channel()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		// Wake when the holder releases, or when its key would expire
		wait, err := l.client.PTTL(ctx, lockKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read lock ttl %s: %w", key, err)
		}
		if wait <= 0 {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-released:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()
	}
}

type redisLock struct {
	locker  *RedisLocker
	key     string
	lockKey string
	token   string
	local   Lock

	lost     chan struct{}
	lostOnce sync.Once
	stop     context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (r *redisLock) Key() string { return r.key }

func (r *redisLock) Lost() <-chan struct{} { return r.lost }

func (r *redisLock) markLost() {
	r.lostOnce.Do(func() { close(r.lost) })
}

func (r *redisLock) heartbeat(ctx context.Context) {
	defer close(r.done)

	l := r.locker
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewed, err := renewScript.Run(ctx, l.client, []string{r.lockKey}, r.token, l.ttl.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("failed to renew lock", "key", r.key, "error", err)
			continue
		}
		if renewed == 0 {
			l.logger.Warn("lock expired while held, another process may have entered",
				"key", r.key,
				"ttl", l.ttl,
			)
			l.metrics.Increment(MetricLockLost)
			r.markLost()
			return
		}
		l.metrics.Increment(MetricLockRenewed)
	}
}

func (r *redisLock) Release() {
	r.once.Do(func() {
		r.stop()
		<-r.done

		l := r.locker
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		deleted, err := releaseScript.Run(ctx, l.client, []string{r.lockKey}, r.token).Int()
		switch {
		case err != nil:
			l.logger.Warn("failed to release lock, it will expire on its own",
				"key", r.key,
				"error", err,
			)
		case deleted == 0:
			l.logger.Warn("lock was no longer owned at release", "key", r.key)
			r.markLost()
		default:
			if err := l.client.Publish(ctx, l.releaseChannel(r.key), r.token).Err(); err != nil {
				l.logger.Warn("failed to publish lock release", "key", r.key, "error", err)
			}
		}

		r.local.Release()
	})
}
