package contentbase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCounter_IncrementDecrement(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	metrics := NewInMemoryMetrics()
	c := NewCounter(client, "test:counter:a", nil, metrics)

	if v, err := c.Get(ctx); err != nil || v != 0 {
		t.Fatalf("Get on missing counter = (%d, %v), want (0, nil)", v, err)
	}

	for want := int64(1); want <= 3; want++ {
		v, err := c.Increment(ctx)
		if err != nil || v != want {
			t.Fatalf("Increment = (%d, %v), want %d", v, err, want)
		}
	}
	if v, _ := c.Decrement(ctx); v != 2 {
		t.Errorf("Decrement = %d, want 2", v)
	}
	if v, _ := c.IncrementBy(ctx, 10); v != 12 {
		t.Errorf("IncrementBy(10) = %d, want 12", v)
	}
	if metrics.Count(MetricCounterIncrement) != 5 {
		t.Errorf("increment metric = %d, want 5", metrics.Count(MetricCounterIncrement))
	}

	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if v, _ := c.Get(ctx); v != 0 {
		t.Errorf("Get after Delete = %d", v)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	c := NewCounter(client, "test:counter:b", nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Increment(ctx); err != nil {
				t.Errorf("Increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if v, _ := c.Get(ctx); v != 100 {
		t.Errorf("Get = %d, want 100", v)
	}
}

func TestCounter_ExpireAndSet(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewCounter(client, "test:counter:c", nil, nil)

	c.Increment(ctx)
	if err := c.Expire(ctx, time.Minute); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	// Set keeps the TTL
	if err := c.Set(ctx, 7); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := mr.TTL(c.Key()); ttl != time.Minute {
		t.Errorf("TTL after Set = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if v, _ := c.Get(ctx); v != 0 {
		t.Errorf("Get after expiry = %d, want 0", v)
	}
}

func TestCounter_InvalidValue(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewCounter(client, "test:counter:d", nil, nil)

	mr.Set(c.Key(), "not a number")
	if _, err := c.Get(ctx); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}
