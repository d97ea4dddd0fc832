package contentbase

import (
	"context"
	"testing"
)

func TestInstrumentedBackend_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	metrics := NewInMemoryMetrics()
	backend := NewInstrumentedBackend(NewFilesystemBackend(t.TempDir()), metrics)

	if err := backend.Put(ctx, "a.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := backend.Get(ctx, "a.json"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := backend.Get(ctx, "missing.json"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := backend.PutIfAbsent(ctx, "a.json", []byte(`{}`)); !IsConflict(err) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if got := metrics.Count(MetricBackendOps); got != 4 {
		t.Errorf("ops = %d, want 4", got)
	}
	if got := metrics.Count(MetricBackendErrors); got != 0 {
		t.Errorf("expected outcomes counted as errors: %d", got)
	}
	if got := len(metrics.Timings[MetricBackendLatency]); got != 4 {
		t.Errorf("latency samples = %d, want 4", got)
	}
	if backend.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}

func TestInstrumentedBackend_WorksUnderDocumentStore(t *testing.T) {
	ctx := context.Background()
	metrics := NewInMemoryMetrics()
	store := NewBackendDocumentStore(NewInstrumentedBackend(NewFilesystemBackend(t.TempDir()), metrics), nil, nil)

	v, err := store.Put(ctx, "book", &Document{ID: "1", Data: []byte(`{}`)}, "", WriteCreate)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Put(ctx, "book", &Document{ID: "1", Data: []byte(`{}`)}, v+"x", WriteIfMatch); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.Delete(ctx, "book", "1", ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if metrics.Count(MetricBackendOps) != 3 || metrics.Count(MetricBackendErrors) != 0 {
		t.Errorf("ops = %d, errors = %d", metrics.Count(MetricBackendOps), metrics.Count(MetricBackendErrors))
	}
}
