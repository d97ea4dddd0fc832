package contentbase

import (
	"context"
	"math/rand/v2"
	"time"
)

// Configuration constants for contentbase operations
const (
	// Conflict retry configuration. Zero attempts means retry until the
	// context is done.
	DefaultMaxAttempts     = 0
	DefaultInitialBackoff  = 1 * time.Millisecond
	DefaultMaxBackoff      = 32 * time.Millisecond
	DefaultBackoffMultiple = 2
	DefaultJitterPercent   = 0.5 // 50% jitter to avoid thundering herd

	// Batch operation configuration
	DefaultBatchSize         = 100
	DefaultListPaginatedSize = 100

	// File backend configuration
	DefaultFilePermissions = 0644
	DefaultDirPermissions  = 0755
)

// RetryPolicy controls how conditional-write loops back off after a conflict
type RetryPolicy struct {
	MaxAttempts     int // 0 = unbounded
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple int
	JitterPercent   float64
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialBackoff:  DefaultInitialBackoff,
		MaxBackoff:      DefaultMaxBackoff,
		BackoffMultiple: DefaultBackoffMultiple,
		JitterPercent:   DefaultJitterPercent,
	}
}

// Validate checks if the RetryPolicy is valid
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "MaxAttempts",
			"value":  p.MaxAttempts,
			"reason": "must be non-negative",
		})
	}
	if p.InitialBackoff <= 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "InitialBackoff",
			"value":  p.InitialBackoff,
			"reason": "must be positive",
		})
	}
	if p.MaxBackoff < p.InitialBackoff {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "MaxBackoff",
			"value":  p.MaxBackoff,
			"reason": "must be >= InitialBackoff",
		})
	}
	if p.BackoffMultiple < 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "BackoffMultiple",
			"value":  p.BackoffMultiple,
			"reason": "must be >= 1",
		})
	}
	if p.JitterPercent < 0 || p.JitterPercent > 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "JitterPercent",
			"value":  p.JitterPercent,
			"reason": "must be between 0 and 1",
		})
	}
	return nil
}

// Exhausted reports whether attempt (1-based) is past MaxAttempts
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Backoff returns the delay after the given failed attempt (1-based), with
// jitter applied and capped at MaxBackoff
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= time.Duration(p.BackoffMultiple)
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	if p.JitterPercent > 0 {
		jitter := float64(d) * p.JitterPercent
		d = time.Duration(float64(d) - jitter + rand.Float64()*2*jitter)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Wait sleeps for Backoff(attempt), returning early with ctx.Err()
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
