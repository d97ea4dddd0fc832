package contentbase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheProvider stores opaque cache bytes with a TTL. A zero TTL never
// expires. Providers do not interpret values; CacheStore does.
type CacheProvider interface {
	// Get returns the stored bytes and whether the key was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key and returns what it held, if anything
	Delete(ctx context.Context, key string) ([]byte, bool, error)
}

type memoryCacheItem struct {
	value   []byte
	expires time.Time // zero = never
}

// MemoryCacheProvider is an in-process CacheProvider. Expired items are
// dropped when read, or in bulk by Sweep.
type MemoryCacheProvider struct {
	mu    sync.Mutex
	items map[string]memoryCacheItem
	now   func() time.Time
}

// NewMemoryCacheProvider creates an empty provider
func NewMemoryCacheProvider() *MemoryCacheProvider {
	return &MemoryCacheProvider{
		items: make(map[string]memoryCacheItem),
		now:   time.Now,
	}
}

func (p *MemoryCacheProvider) expired(item memoryCacheItem) bool {
	return !item.expires.IsZero() && !p.now().Before(item.expires)
}

func (p *MemoryCacheProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[key]
	if !ok {
		return nil, false, nil
	}
	if p.expired(item) {
		delete(p.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (p *MemoryCacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryCacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = p.now().Add(ttl)
	}

	p.mu.Lock()
	p.items[key] = item
	p.mu.Unlock()
	return nil
}

func (p *MemoryCacheProvider) Delete(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[key]
	if !ok {
		return nil, false, nil
	}
	delete(p.items, key)
	if p.expired(item) {
		return nil, false, nil
	}
	return item.value, true, nil
}

// Sweep drops every expired item and returns how many were dropped
func (p *MemoryCacheProvider) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for key, item := range p.items {
		if p.expired(item) {
			delete(p.items, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored items, expired or not
func (p *MemoryCacheProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// RedisCacheProvider stores cache items as Redis strings at
// {prefix}:cache:{key}, expiring through PX.
type RedisCacheProvider struct {
	client    *redis.Client
	keyPrefix string
	breaker   *CircuitBreaker
}

// NewRedisCacheProvider creates a provider under keyPrefix
func NewRedisCacheProvider(client *redis.Client, keyPrefix string) *RedisCacheProvider {
	return &RedisCacheProvider{client: client, keyPrefix: keyPrefix}
}

// WithCircuitBreaker routes every call through cb
func (p *RedisCacheProvider) WithCircuitBreaker(cb *CircuitBreaker) *RedisCacheProvider {
	p.breaker = cb
	return p
}

func (p *RedisCacheProvider) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", p.keyPrefix, key)
}

func (p *RedisCacheProvider) do(ctx context.Context, fn func() error) error {
	if p.breaker == nil {
		return fn()
	}
	return p.breaker.Execute(ctx, fn)
}

func (p *RedisCacheProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := p.do(ctx, func() error {
		v, err := p.client.Get(ctx, p.key(key)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read cache key %s: %w", key, err)
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}

func (p *RedisCacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.do(ctx, func() error {
		if err := p.client.Set(ctx, p.key(key), value, ttl).Err(); err != nil {
			return fmt.Errorf("failed to write cache key %s: %w", key, err)
		}
		return nil
	})
}

func (p *RedisCacheProvider) Delete(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := p.do(ctx, func() error {
		v, err := p.client.GetDel(ctx, p.key(key)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete cache key %s: %w", key, err)
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}
