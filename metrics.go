package contentbase

import (
	"sync"
	"time"
)

// Metrics provides observability for contentbase operations
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (latency, size, etc)
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                      {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)           {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)       {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing. Safe for concurrent use.
type InMemoryMetrics struct {
	mu         sync.Mutex
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timings[name] = append(m.Timings[name], duration)
}

// Count returns the current value of a counter
func (m *InMemoryMetrics) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counters[name]
}

func metricsOrNoOp(m Metrics) Metrics {
	if m == nil {
		return &NoOpMetrics{}
	}
	return m
}

// Common metric names
const (
	MetricDocGetSuccess    = "contentbase.doc.get.success"
	MetricDocGetError      = "contentbase.doc.get.error"
	MetricDocGetDuration   = "contentbase.doc.get.duration"
	MetricDocWriteSuccess  = "contentbase.doc.write.success"
	MetricDocWriteError    = "contentbase.doc.write.error"
	MetricDocWriteDuration = "contentbase.doc.write.duration"
	MetricDocConflict      = "contentbase.doc.conflict"
	MetricDocSearch        = "contentbase.doc.search"
	MetricDocSearchResults = "contentbase.doc.search.results"

	MetricLockAcquired = "contentbase.lock.acquired"
	MetricLockFailed   = "contentbase.lock.failed"
	MetricLockWaitTime = "contentbase.lock.wait_duration"
	MetricLockRenewed  = "contentbase.lock.renewed"
	MetricLockLost     = "contentbase.lock.lost"
	MetricLockActive   = "contentbase.lock.active"

	MetricLockOrphaned     = "contentbase.lock.orphaned"
	MetricLockCleanup      = "contentbase.lock.cleanup"
	MetricLockForceRelease = "contentbase.lock.force_release"

	MetricCacheHits      = "contentbase.cache.hits"
	MetricCacheMisses    = "contentbase.cache.misses"
	MetricCacheComputed  = "contentbase.cache.computed"
	MetricCacheNegatives = "contentbase.cache.negatives"

	MetricSnapshotCreated   = "contentbase.snapshot.created"
	MetricSnapshotRollback  = "contentbase.snapshot.rollback"
	MetricSnapshotMismatch  = "contentbase.snapshot.mismatch"
	MetricSnapshotBlobBytes = "contentbase.snapshot.blob_bytes"

	MetricMergeCandidates = "contentbase.merge.candidates"
	MetricMergeDryFolded  = "contentbase.merge.dry_folded"
	MetricMergeFolded     = "contentbase.merge.folded"
	MetricMergeCreated    = "contentbase.merge.created"
	MetricMergeDuration   = "contentbase.merge.duration"

	MetricCounterIncrement = "contentbase.counter.increment"
	MetricCounterError     = "contentbase.counter.error"

	MetricBackendOps     = "contentbase.backend.ops"
	MetricBackendErrors  = "contentbase.backend.errors"
	MetricBackendLatency = "contentbase.backend.latency"
)
