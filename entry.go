package contentbase

import (
	"context"
	"fmt"
	"time"
)

// Entry is a handle on one document for optimistic concurrency.
//
// Value and Version are what was last read or written. The Try* methods use
// Version as the precondition; when another writer got there first they
// refresh the entry and return false, and the caller re-applies its change to
// the refreshed Value and tries again.
type Entry[T any] struct {
	ID      string
	Value   *T
	Version string

	coll *Collection[T]
	base *T // copy of Value as stored at Version
}

// Exists reports whether the document existed at the observed version
func (e *Entry[T]) Exists() bool {
	return e.Version != ""
}

// Refresh re-reads the document
func (e *Entry[T]) Refresh(ctx context.Context) error {
	value, doc, err := e.coll.load(ctx, e.ID)
	if err != nil {
		return err
	}

	e.Value = value
	e.Version = ""
	if doc != nil {
		e.Version = doc.Version
	}
	return e.rebase()
}

func (e *Entry[T]) rebase() error {
	base, err := DeepCopy(e.Value)
	if err != nil {
		return err
	}
	e.base = base
	return nil
}

// TryCreate writes Value if the document does not exist
func (e *Entry[T]) TryCreate(ctx context.Context) (bool, error) {
	if e.Value == nil {
		return false, WithContext(ErrInvalidData, map[string]interface{}{"id": e.ID, "reason": "nothing to create"})
	}
	return e.tryWrite(ctx, WriteCreate)
}

// TryUpdate writes Value if the document is still at Version. An entry
// observed as absent is created instead.
func (e *Entry[T]) TryUpdate(ctx context.Context) (bool, error) {
	if e.Value == nil {
		return false, WithContext(ErrInvalidData, map[string]interface{}{"id": e.ID, "reason": "nothing to update, use TryDelete"})
	}
	if !e.Exists() {
		return e.tryWrite(ctx, WriteCreate)
	}
	return e.tryWrite(ctx, WriteIfMatch)
}

// TryDelete deletes the document if it is still at Version. Deleting an
// entry observed as absent succeeds without a write.
func (e *Entry[T]) TryDelete(ctx context.Context) (bool, error) {
	c := e.coll
	if !e.Exists() {
		e.Value = nil
		return true, nil
	}

	err := c.store.Delete(ctx, c.docType, e.ID, e.Version)
	if IsConflict(err) || IsNotFound(err) {
		return false, e.conflict(ctx)
	}
	if err != nil {
		c.metrics.Increment(MetricDocWriteError, "type", c.docType)
		return false, err
	}
	c.metrics.Increment(MetricDocWriteSuccess, "type", c.docType)

	e.Value = nil
	e.Version = ""
	e.base = nil
	return true, e.recordDelete(ctx)
}

// Update writes Value unconditionally (last writer wins). An entry that was
// never read looks up the stored value first, so history records the
// overwrite as a modification.
func (e *Entry[T]) Update(ctx context.Context) error {
	if e.Value == nil {
		return WithContext(ErrInvalidData, map[string]interface{}{"id": e.ID, "reason": "nothing to update"})
	}
	if !e.Exists() && e.base == nil && e.coll.snapshots != nil {
		prior, doc, err := e.coll.load(ctx, e.ID)
		if err != nil {
			return err
		}
		if doc != nil {
			e.base = prior
		}
	}
	_, err := e.tryWrite(ctx, WriteAlways)
	return err
}

func (e *Entry[T]) tryWrite(ctx context.Context, mode WriteMode) (bool, error) {
	c := e.coll
	doc, err := c.encode(e.ID, e.Value)
	if err != nil {
		return false, err
	}

	start := time.Now()
	version, err := c.store.Put(ctx, c.docType, doc, e.Version, mode)
	c.metrics.Timing(MetricDocWriteDuration, time.Since(start), "type", c.docType)

	if mode != WriteAlways && (IsConflict(err) || IsNotFound(err)) {
		return false, e.conflict(ctx)
	}
	if err != nil {
		c.metrics.Increment(MetricDocWriteError, "type", c.docType)
		return false, err
	}
	c.metrics.Increment(MetricDocWriteSuccess, "type", c.docType)

	before := e.base
	e.Version = version
	if err := e.rebase(); err != nil {
		return true, err
	}
	return true, e.recordWrite(ctx, mode, before)
}

// conflict refreshes the entry after a failed precondition
func (e *Entry[T]) conflict(ctx context.Context) error {
	c := e.coll
	c.metrics.Increment(MetricDocConflict, "type", c.docType)
	c.logger.Debug("write conflict, refreshing", "type", c.docType, "id", e.ID, "version", e.Version)
	return e.Refresh(ctx)
}

func (e *Entry[T]) recordWrite(ctx context.Context, mode WriteMode, before *T) error {
	svc := e.coll.snapshots
	if svc == nil {
		return nil
	}

	var err error
	switch {
	case rollbackTargetFrom(ctx) != nil:
		_, err = svc.OnRolledBack(ctx, rollbackTargetFrom(ctx))
	case mode == WriteCreate || before == nil:
		_, err = svc.OnCreated(ctx, e.coll.docType, e.ID, e.Value)
	default:
		_, err = svc.OnModified(ctx, e.coll.docType, e.ID, before, e.Value)
	}
	if err != nil {
		return fmt.Errorf("document %s/%s written but snapshot failed: %w", e.coll.docType, e.ID, err)
	}
	return nil
}

func (e *Entry[T]) recordDelete(ctx context.Context) error {
	svc := e.coll.snapshots
	if svc == nil {
		return nil
	}

	var err error
	if target := rollbackTargetFrom(ctx); target != nil {
		_, err = svc.OnRolledBack(ctx, target)
	} else {
		_, err = svc.OnDeleted(ctx, e.coll.docType, e.ID)
	}
	if err != nil {
		return fmt.Errorf("document %s/%s deleted but snapshot failed: %w", e.coll.docType, e.ID, err)
	}
	return nil
}
