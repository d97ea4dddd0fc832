package contentbase

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestLockManager_ListAndInspect(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, "test")
	manager := NewLockManager(client, "test", nil, nil)
	ctx := context.Background()

	a, _ := locker.Enter(ctx, "books/1")
	defer a.Release()
	b, _ := locker.Enter(ctx, "index:book")
	defer b.Release()

	locks, err := manager.ListLocks(ctx)
	if err != nil {
		t.Fatalf("ListLocks failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("ListLocks returned %d locks, want 2", len(locks))
	}

	info, err := manager.GetLockInfo(ctx, "books/1")
	if err != nil {
		t.Fatalf("GetLockInfo failed: %v", err)
	}
	if info.AcquiredAt.IsZero() {
		t.Error("AcquiredAt should be parsed from the token")
	}
	if info.TTL <= 0 {
		t.Errorf("TTL = %v, want positive", info.TTL)
	}

	if _, err := manager.GetLockInfo(ctx, "missing"); !errors.Is(err, ErrLockNotFound) {
		t.Errorf("expected ErrLockNotFound, got %v", err)
	}
}

func TestLockManager_CleanupOrphanedLocks(t *testing.T) {
	mr, client := newTestRedis(t)
	manager := NewLockManager(client, "test", nil, nil)
	ctx := context.Background()

	old := time.Now().Add(-10 * time.Minute).UnixNano()
	mr.Set("test:lock:stale", formatTestToken(old))
	mr.SetTTL("test:lock:stale", time.Minute)
	mr.Set("test:lock:fresh", newLockToken())
	mr.SetTTL("test:lock:fresh", time.Minute)

	removed, err := manager.CleanupOrphanedLocks(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("CleanupOrphanedLocks failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if mr.Exists("test:lock:stale") {
		t.Error("stale lock should be gone")
	}
	if !mr.Exists("test:lock:fresh") {
		t.Error("fresh lock should be kept")
	}
}

func TestLockManager_ForceRelease(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, "test")
	manager := NewLockManager(client, "test", nil, nil)
	ctx := context.Background()

	lock, _ := locker.Enter(ctx, "k")
	defer lock.Release()

	if err := manager.ForceRelease(ctx, "k"); err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}
	if err := manager.ForceRelease(ctx, "k"); !errors.Is(err, ErrLockNotFound) {
		t.Errorf("second ForceRelease: expected ErrLockNotFound, got %v", err)
	}
}

func formatTestToken(nanos int64) string {
	return strconv.FormatInt(nanos, 10) + ":test"
}
