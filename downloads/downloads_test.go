package downloads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg Config) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := contentbase.NewRedisLocker(client, "test")
	return NewService(contentbase.NewMemoryDocumentStore(), locker, client, "test", cfg), mr
}

func TestService_LimitPerUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{MaxConcurrent: 2})

	s1, err := svc.Create(ctx, "u1", "b1", "c1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", "b2", "c2")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "u1", "b3", "c3")
	require.ErrorIs(t, err, contentbase.ErrResourceExhausted)
	assert.True(t, contentbase.IsResourceExhausted(err))

	// Other users are unaffected
	_, err = svc.Create(ctx, "u2", "b1", "c1")
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, s1.ID))
	active, err := svc.Active(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)

	_, err = svc.Create(ctx, "u1", "b3", "c3")
	require.NoError(t, err, "closing frees a slot")
}

func TestService_ConcurrentCreateRespectsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{MaxConcurrent: 3})

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, exhausted := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, "u1", "b1", "c1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case contentbase.IsResourceExhausted(err):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Equal(t, 17, exhausted)
}

func TestService_GetAndClose(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{SessionTTL: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	s, err := svc.Create(ctx, "u1", "b1", "c1")
	require.NoError(t, err)

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BookID)

	now = now.Add(2 * time.Minute)
	_, err = svc.Get(ctx, s.ID)
	assert.True(t, contentbase.IsNotFound(err), "expired session")

	require.NoError(t, svc.Close(ctx, s.ID))
	assert.True(t, contentbase.IsNotFound(svc.Close(ctx, s.ID)))
}

func TestService_CounterExpiresWithSessions(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t, Config{MaxConcurrent: 1, SessionTTL: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	abandoned, err := svc.Create(ctx, "u1", "b1", "c1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", "b1", "c1")
	require.ErrorIs(t, err, contentbase.ErrResourceExhausted)

	// The session was abandoned; its slot frees itself
	now = now.Add(2 * time.Minute)
	mr.FastForward(2 * time.Minute)
	live, err := svc.Create(ctx, "u1", "b1", "c1")
	require.NoError(t, err)

	// Closing the abandoned session must not free the live session's slot
	require.NoError(t, svc.Close(ctx, abandoned.ID))
	active, err := svc.Active(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
	_, err = svc.Create(ctx, "u1", "b2", "c2")
	require.ErrorIs(t, err, contentbase.ErrResourceExhausted)

	require.NoError(t, svc.Close(ctx, live.ID))
	active, err = svc.Active(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, active)
}

func TestService_FailedCounterLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(contentbase.NewMemoryDocumentStore(), contentbase.NewMemoryLocker(), client, "test", Config{})

	mr.SetError("counter unavailable")
	_, err := svc.Create(ctx, "u1", "b1", "c1")
	require.Error(t, err)
	mr.SetError("")

	sessions, err := svc.sessions.Search(ctx, contentbase.Query{}.Where("user", "u1"))
	require.NoError(t, err)
	assert.Empty(t, sessions, "no session exists without a counted slot")
}

type failingStore struct {
	*contentbase.MemoryDocumentStore
}

func (failingStore) Put(context.Context, string, *contentbase.Document, string, contentbase.WriteMode) (string, error) {
	return "", contentbase.ErrBackendUnavailable
}

func TestService_FailedSessionWriteReturnsSlot(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := failingStore{contentbase.NewMemoryDocumentStore()}
	svc := NewService(store, contentbase.NewMemoryLocker(), client, "test", Config{MaxConcurrent: 1})

	_, err := svc.Create(ctx, "u1", "b1", "c1")
	require.ErrorIs(t, err, contentbase.ErrBackendUnavailable)

	active, err := svc.Active(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, active)
}

func TestService_RequiresUser(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	_, err := svc.Create(context.Background(), "", "b1", "c1")
	assert.ErrorIs(t, err, contentbase.ErrInvalidData)
}
