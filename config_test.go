package contentbase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default policy", DefaultRetryPolicy(), false},
		{
			name: "bounded attempts",
			policy: RetryPolicy{
				MaxAttempts:     5,
				InitialBackoff:  10 * time.Millisecond,
				MaxBackoff:      time.Second,
				BackoffMultiple: 2,
				JitterPercent:   0.1,
			},
		},
		{
			name:    "negative attempts",
			policy:  RetryPolicy{MaxAttempts: -1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiple: 1},
			wantErr: true,
		},
		{
			name:    "zero backoff",
			policy:  RetryPolicy{MaxBackoff: time.Millisecond, BackoffMultiple: 1},
			wantErr: true,
		},
		{
			name:    "max below initial",
			policy:  RetryPolicy{InitialBackoff: time.Second, MaxBackoff: time.Millisecond, BackoffMultiple: 1},
			wantErr: true,
		},
		{
			name:    "multiple below one",
			policy:  RetryPolicy{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
			wantErr: true,
		},
		{
			name:    "jitter above one",
			policy:  RetryPolicy{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiple: 2, JitterPercent: 1.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	p.JitterPercent = 0

	want := []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
		16 * time.Millisecond,
		32 * time.Millisecond,
		32 * time.Millisecond,
		32 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := p.Backoff(1000); got != p.MaxBackoff {
		t.Errorf("Backoff(1000) = %v, want cap %v", got, p.MaxBackoff)
	}
}

func TestRetryPolicyJitterBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	for i := 0; i < 100; i++ {
		d := p.Backoff(6)
		if d < 16*time.Millisecond || d > 48*time.Millisecond {
			t.Fatalf("Backoff(6) = %v outside 32ms +/- 50%%", d)
		}
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	if DefaultRetryPolicy().Exhausted(1 << 20) {
		t.Error("unbounded policy should never be exhausted")
	}
	p := RetryPolicy{MaxAttempts: 3}
	if p.Exhausted(2) || !p.Exhausted(3) {
		t.Error("MaxAttempts=3 should be exhausted at attempt 3 only")
	}
}

func TestRetryPolicyWaitHonoursContext(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiple: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
