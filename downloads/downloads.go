// Package downloads tracks download sessions and caps how many a user may
// have open at once, across every process sharing the Redis instance.
package downloads

import (
	"context"
	"fmt"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/redis/go-redis/v9"
)

// DocType is the document type sessions are stored under
const DocType = "download"

// Defaults for Config
const (
	DefaultMaxConcurrent = 3
	DefaultSessionTTL    = 30 * time.Minute
)

// Session is one open download of a book content
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	BookID      string    `json:"bookId"`
	ContentID   string    `json:"contentId"`
	CreatedTime time.Time `json:"createdTime"`
	ExpiresTime time.Time `json:"expiresTime"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresTime)
}

// Config limits download sessions
type Config struct {
	MaxConcurrent int           // per user
	SessionTTL    time.Duration // lifetime of a session and of the user's active count
}

// Service creates and closes download sessions
type Service struct {
	sessions  *contentbase.Collection[Session]
	locker    contentbase.Locker
	redis     *redis.Client
	keyPrefix string
	cfg       Config
	now       func() time.Time
	logger    contentbase.Logger
	metrics   contentbase.Metrics
}

// NewService creates a session service. Active counts live in Redis under
// {keyPrefix}:downloads:active:{user}.
func NewService(store contentbase.DocumentStore, locker contentbase.Locker, client *redis.Client, keyPrefix string, cfg Config) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	return &Service{
		sessions: contentbase.NewCollection[Session](store, DocType).WithTerms(func(s *Session) map[string][]string {
			return map[string][]string{"user": {s.UserID}, "book": {s.BookID}}
		}),
		locker:    locker,
		redis:     client,
		keyPrefix: keyPrefix,
		cfg:       cfg,
		now:       time.Now,
		logger:    &contentbase.NoOpLogger{},
		metrics:   &contentbase.NoOpMetrics{},
	}
}

// WithLogger sets the logger
func (s *Service) WithLogger(logger contentbase.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithMetrics sets the metrics collector
func (s *Service) WithMetrics(metrics contentbase.Metrics) *Service {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

func userLockKey(userID string) string {
	return "downloads:user:" + userID
}

func (s *Service) counter(userID string) *contentbase.Counter {
	key := fmt.Sprintf("%s:downloads:active:%s", s.keyPrefix, userID)
	return contentbase.NewCounter(s.redis, key, s.logger, s.metrics)
}

// Create opens a session for userID. It fails with ErrResourceExhausted
// when the user already has MaxConcurrent sessions open.
func (s *Service) Create(ctx context.Context, userID, bookID, contentID string) (*Session, error) {
	if userID == "" {
		return nil, contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{"reason": "user is required"})
	}

	lock, err := s.locker.Enter(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	// Take the slot first so a session document never exists uncounted
	counter := s.counter(userID)
	active, err := counter.Increment(ctx)
	if err != nil {
		return nil, err
	}
	if active > int64(s.cfg.MaxConcurrent) {
		s.releaseSlot(counter, userID)
		return nil, contentbase.WithContext(contentbase.ErrResourceExhausted, map[string]interface{}{
			"user":   userID,
			"active": active - 1,
			"limit":  s.cfg.MaxConcurrent,
		})
	}
	// A user whose sessions were never closed gets a clean slate after the TTL
	if err := counter.Expire(ctx, s.cfg.SessionTTL); err != nil {
		s.logger.Warn("failed to set download counter ttl", "user", userID, "error", err)
	}

	session, err := s.createSession(ctx, userID, bookID, contentID)
	if err != nil {
		s.releaseSlot(counter, userID)
		return nil, err
	}

	s.logger.Debug("download session created", "session", session.ID, "user", userID, "active", active)
	return session, nil
}

func (s *Service) createSession(ctx context.Context, userID, bookID, contentID string) (*Session, error) {
	now := s.now().UTC()
	e, err := s.sessions.GetEntry(ctx, contentbase.NewID())
	if err != nil {
		return nil, err
	}
	e.Value = &Session{
		ID:          e.ID,
		UserID:      userID,
		BookID:      bookID,
		ContentID:   contentID,
		CreatedTime: now,
		ExpiresTime: now.Add(s.cfg.SessionTTL),
	}
	ok, err := e.TryCreate(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, contentbase.WithContext(contentbase.ErrAlreadyExists, map[string]interface{}{"session": e.ID})
	}
	return e.Value, nil
}

// releaseSlot gives back a slot taken by Create. It runs detached from the
// caller's context so a cancelled request still returns its slot.
func (s *Service) releaseSlot(counter *contentbase.Counter, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := counter.Decrement(ctx)
	if err != nil {
		s.logger.Warn("failed to release download slot, it frees itself after the ttl", "user", userID, "error", err)
		return
	}
	if n < 0 {
		if err := counter.Delete(ctx); err != nil {
			s.logger.Warn("failed to reset download counter", "user", userID, "error", err)
		}
	}
}

// Get returns a live session. Expired sessions are ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"session": id, "reason": "expired"})
	}
	return session, nil
}

// Close ends a session and frees its slot. Closing a missing session is
// ErrNotFound.
func (s *Service) Close(ctx context.Context, id string) error {
	var closed *Session
	_, err := s.sessions.Mutate(ctx, id, func(e *contentbase.Entry[Session]) (bool, error) {
		if e.Value == nil {
			return false, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"session": id})
		}
		closed = e.Value
		e.Value = nil
		return true, nil
	})
	if err != nil {
		return err
	}

	// The slot of an expired session may already have been dropped with the
	// counter and retaken by newer sessions; leave the count to its TTL
	if closed.Expired(s.now()) {
		s.logger.Debug("closed expired download session", "session", id, "user", closed.UserID)
		return nil
	}

	lock, err := s.locker.Enter(ctx, userLockKey(closed.UserID))
	if err != nil {
		return err
	}
	defer lock.Release()

	counter := s.counter(closed.UserID)
	n, err := counter.Decrement(ctx)
	if err != nil {
		return err
	}
	// The counter expired while the session was open
	if n < 0 {
		if err := counter.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Active returns how many sessions userID has open
func (s *Service) Active(ctx context.Context, userID string) (int64, error) {
	return s.counter(userID).Get(ctx)
}
