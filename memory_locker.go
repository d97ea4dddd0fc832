package contentbase

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is an in-process Locker.
//
// Each key gets a slot created on first use: a WaitQueue holding a single
// token, so callers acquire in arrival order. A slot is reference counted by
// its holder and waiters and removed from the map when the count drops to zero.
type MemoryLocker struct {
	mu      sync.Mutex
	slots   map[string]*lockSlot
	metrics Metrics
}

type lockSlot struct {
	refs  int
	queue *WaitQueue[struct{}]
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		slots:   make(map[string]*lockSlot),
		metrics: &NoOpMetrics{},
	}
}

// WithMetrics sets the metrics collector
func (l *MemoryLocker) WithMetrics(metrics Metrics) *MemoryLocker {
	l.metrics = metricsOrNoOp(metrics)
	return l
}

// Enter blocks until key is free or ctx is done
func (l *MemoryLocker) Enter(ctx context.Context, key string) (Lock, error) {
	if err := validateLockKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	slot := l.acquireSlot(key)

	if _, err := slot.queue.Dequeue(ctx); err != nil {
		l.releaseSlot(key, slot)
		l.metrics.Increment(MetricLockFailed, "locker", "memory")
		return nil, err
	}

	l.metrics.Timing(MetricLockWaitTime, time.Since(start), "locker", "memory")
	l.metrics.Increment(MetricLockAcquired, "locker", "memory")
	return &memoryLock{locker: l, key: key, slot: slot}, nil
}

// Len returns the number of keys with a holder or waiter
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *MemoryLocker) acquireSlot(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{queue: NewWaitQueue[struct{}]()}
		slot.queue.Enqueue(struct{}{})
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) releaseSlot(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 && l.slots[key] == slot {
		delete(l.slots, key)
	}
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	slot   *lockSlot
	once   sync.Once
}

func (m *memoryLock) Key() string { return m.key }

func (m *memoryLock) Lost() <-chan struct{} { return nil }

func (m *memoryLock) Release() {
	m.once.Do(func() {
		m.slot.queue.Enqueue(struct{}{})
		m.locker.releaseSlot(m.key, m.slot)
	})
}
