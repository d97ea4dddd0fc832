package contentbase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type cachedUser struct {
	Name string `json:"name"`
}

// countingCompute returns a ComputeFunc that counts its calls
func countingCompute(calls *atomic.Int32, value *cachedUser) ComputeFunc[cachedUser] {
	return func(ctx context.Context) (*cachedUser, error) {
		calls.Add(1)
		if value == nil {
			return nil, nil
		}
		v := *value
		return &v, nil
	}
}

func TestCacheStoreCompliance(t *testing.T) {
	providers := []struct {
		name     string
		provider func(t *testing.T) CacheProvider
	}{
		{"Memory", func(t *testing.T) CacheProvider { return NewMemoryCacheProvider() }},
		{"Redis", func(t *testing.T) CacheProvider {
			_, client := newTestRedis(t)
			return NewRedisCacheProvider(client, "test")
		}},
	}

	for _, tc := range providers {
		t.Run(tc.name, func(t *testing.T) {
			t.Run("ComputesOnce", func(t *testing.T) { testCacheComputesOnce(t, tc.provider(t)) })
			t.Run("CachesAbsence", func(t *testing.T) { testCacheCachesAbsence(t, tc.provider(t)) })
			t.Run("DeleteRecomputes", func(t *testing.T) { testCacheDeleteRecomputes(t, tc.provider(t)) })
			t.Run("ComputeError", func(t *testing.T) { testCacheComputeError(t, tc.provider(t)) })
		})
	}
}

func testCacheComputesOnce(t *testing.T, provider CacheProvider) {
	ctx := context.Background()
	cache := NewCacheStore[cachedUser]("users", provider)
	var calls atomic.Int32

	first, err := cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"}))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "other"}))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}
	if first.Name != "ann" || second.Name != "ann" {
		t.Errorf("got %q then %q, want ann twice", first.Name, second.Name)
	}
}

func testCacheCachesAbsence(t *testing.T, provider CacheProvider) {
	ctx := context.Background()
	metrics := NewInMemoryMetrics()
	cache := NewCacheStore[cachedUser]("users", provider).WithMetrics(metrics)
	var calls atomic.Int32

	v, err := cache.Get(ctx, "ghost", countingCompute(&calls, nil))
	if err != nil || v != nil {
		t.Fatalf("first Get = (%v, %v), want (nil, nil)", v, err)
	}

	// A different compute must not run while the absence is cached
	v, err = cache.Get(ctx, "ghost", countingCompute(&calls, &cachedUser{Name: "late"}))
	if err != nil || v != nil {
		t.Fatalf("second Get = (%v, %v), want (nil, nil)", v, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}
	if metrics.Count(MetricCacheNegatives) != 1 {
		t.Errorf("negative hits = %d, want 1", metrics.Count(MetricCacheNegatives))
	}
}

func testCacheDeleteRecomputes(t *testing.T, provider CacheProvider) {
	ctx := context.Background()
	cache := NewCacheStore[cachedUser]("users", provider)
	var calls atomic.Int32

	if _, err := cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"})); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	evicted, err := cache.Delete(ctx, "u1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if evicted == nil || evicted.Name != "ann" {
		t.Errorf("Delete returned %v, want ann", evicted)
	}

	v, err := cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "bob"}))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v.Name != "bob" || calls.Load() != 2 {
		t.Errorf("after Delete got %q with %d computes, want bob with 2", v.Name, calls.Load())
	}

	if evicted, err := cache.Delete(ctx, "missing"); evicted != nil || err != nil {
		t.Errorf("Delete(missing) = (%v, %v)", evicted, err)
	}
}

func testCacheComputeError(t *testing.T, provider CacheProvider) {
	ctx := context.Background()
	cache := NewCacheStore[cachedUser]("users", provider)
	boom := errors.New("boom")

	_, err := cache.Get(ctx, "u1", func(ctx context.Context) (*cachedUser, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}

	// Errors are not cached
	var calls atomic.Int32
	if _, err := cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"})); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}
}

func TestCacheStore_MemoryTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	provider := NewMemoryCacheProvider()
	provider.now = clock.Now
	cache := NewCacheStore[cachedUser]("users", provider).WithTTL(time.Minute)
	var calls atomic.Int32

	cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"}))
	if err := cache.Set(ctx, "u2", &cachedUser{Name: "long"}, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(30 * time.Second)
	cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"}))
	if calls.Load() != 1 {
		t.Fatalf("recomputed before TTL: %d calls", calls.Load())
	}

	clock.Advance(31 * time.Second)
	cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"}))
	if calls.Load() != 2 {
		t.Errorf("not recomputed after TTL: %d calls", calls.Load())
	}

	// Per-call TTL overrides the store default
	v, _ := cache.Get(ctx, "u2", countingCompute(&calls, nil))
	if v == nil || v.Name != "long" {
		t.Errorf("explicit TTL entry expired early: %v", v)
	}

	clock.Advance(2 * time.Hour)
	if n := provider.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if provider.Len() != 0 {
		t.Errorf("Len() = %d after sweep", provider.Len())
	}
}

func TestCacheStore_RedisTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cache := NewCacheStore[cachedUser]("users", NewRedisCacheProvider(client, "test")).WithTTL(time.Minute)
	var calls atomic.Int32

	cache.Get(ctx, "ghost", countingCompute(&calls, nil))
	if !mr.Exists("test:cache:users:ghost") {
		t.Fatal("absence not stored in redis")
	}
	if ttl := mr.TTL("test:cache:users:ghost"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	v, _ := cache.Get(ctx, "ghost", countingCompute(&calls, &cachedUser{Name: "now exists"}))
	if v == nil || v.Name != "now exists" || calls.Load() != 2 {
		t.Errorf("after TTL got %v with %d computes", v, calls.Load())
	}
}

func TestCacheStore_StampedeProtection(t *testing.T) {
	lockers := map[string]func(t *testing.T) Locker{
		"Memory": func(t *testing.T) Locker { return NewMemoryLocker() },
		"Redis": func(t *testing.T) Locker {
			_, client := newTestRedis(t)
			return NewRedisLocker(client, "test")
		},
	}

	for name, newLocker := range lockers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cache := NewCacheStore[cachedUser]("users", NewMemoryCacheProvider()).WithLocker(newLocker(t))

			var calls atomic.Int32
			compute := func(ctx context.Context) (*cachedUser, error) {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond)
				return &cachedUser{Name: "slow"}, nil
			}

			const n = 50
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := cache.Get(ctx, "hot", compute)
					if err != nil || v == nil || v.Name != "slow" {
						t.Errorf("Get = (%v, %v)", v, err)
					}
				}()
			}
			wg.Wait()

			if calls.Load() != 1 {
				t.Errorf("compute called %d times, want 1", calls.Load())
			}
		})
	}
}

func TestCacheStore_ProviderFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	breaker := NewCircuitBreaker(1, time.Minute)
	provider := NewRedisCacheProvider(client, "test").WithCircuitBreaker(breaker)
	cache := NewCacheStore[cachedUser]("users", provider)

	client.Close()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		v, err := cache.Get(ctx, "u1", countingCompute(&calls, &cachedUser{Name: "ann"}))
		if err != nil || v == nil || v.Name != "ann" {
			t.Fatalf("Get %d = (%v, %v)", i, v, err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("compute called %d times, want 3", calls.Load())
	}
	if breaker.State() != CircuitOpen {
		t.Errorf("breaker state = %s, want open", breaker.State())
	}
}
