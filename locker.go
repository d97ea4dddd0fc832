package contentbase

import "context"

// Locker provides named mutual exclusion.
//
// Enter blocks until the caller owns key or ctx is done. The returned Lock must
// be released exactly once, normally with defer:
//
//	lock, err := locker.Enter(ctx, "index:book")
//	if err != nil {
//	    return err
//	}
//	defer lock.Release()
type Locker interface {
	Enter(ctx context.Context, key string) (Lock, error)
}

// Lock is held ownership of one key.
type Lock interface {
	// Key returns the locked key
	Key() string

	// Release gives up ownership. Safe to call more than once and safe to call
	// after the locker's backing resources are gone; it never panics.
	Release()

	// Lost is closed when ownership was lost while still held (a distributed
	// lock whose TTL expired). Nil for locks that cannot be lost.
	Lost() <-chan struct{}
}

func validateLockKey(key string) error {
	if key == "" {
		return WithContext(ErrInvalidLockKey, map[string]interface{}{
			"reason": "key is empty",
		})
	}
	return nil
}
