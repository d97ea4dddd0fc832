package contentbase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Collection is a typed view of one document type in a DocumentStore.
// Values are stored as JSON; terms for search come from the WithTerms
// extractor.
type Collection[T any] struct {
	store     DocumentStore
	docType   string
	terms     func(*T) map[string][]string
	snapshots *SnapshotService
	retry     RetryPolicy
	logger    Logger
	metrics   Metrics
}

// NewCollection binds T to docType in store
func NewCollection[T any](store DocumentStore, docType string) *Collection[T] {
	return &Collection[T]{
		store:   store,
		docType: docType,
		retry:   DefaultRetryPolicy(),
		logger:  &NoOpLogger{},
		metrics: &NoOpMetrics{},
	}
}

// WithTerms sets the search term extractor
func (c *Collection[T]) WithTerms(fn func(*T) map[string][]string) *Collection[T] {
	c.terms = fn
	return c
}

// WithSnapshots records every successful write in svc
func (c *Collection[T]) WithSnapshots(svc *SnapshotService) *Collection[T] {
	c.snapshots = svc
	return c
}

// WithRetryPolicy sets the conflict backoff used by Mutate
func (c *Collection[T]) WithRetryPolicy(policy RetryPolicy) *Collection[T] {
	c.retry = policy
	return c
}

// WithLogger sets the logger
func (c *Collection[T]) WithLogger(logger Logger) *Collection[T] {
	c.logger = loggerOrNoOp(logger)
	return c
}

// WithMetrics sets the metrics collector
func (c *Collection[T]) WithMetrics(metrics Metrics) *Collection[T] {
	c.metrics = metricsOrNoOp(metrics)
	return c
}

// DocType returns the document type of the collection
func (c *Collection[T]) DocType() string {
	return c.docType
}

// Snapshots returns the snapshot service, or nil
func (c *Collection[T]) Snapshots() *SnapshotService {
	return c.snapshots
}

func (c *Collection[T]) encode(id string, value *T) (*Document, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"type":  c.docType,
			"id":    id,
			"error": err.Error(),
		})
	}
	doc := &Document{ID: id, Data: data}
	if c.terms != nil {
		doc.Terms = c.terms(value)
	}
	return doc, nil
}

func (c *Collection[T]) decode(doc *Document) (*T, error) {
	var value T
	if err := json.Unmarshal(doc.Data, &value); err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"type":  c.docType,
			"id":    doc.ID,
			"error": err.Error(),
		})
	}
	return &value, nil
}

// load reads one document; a missing document is (nil, "", nil)
func (c *Collection[T]) load(ctx context.Context, id string) (*T, *Document, error) {
	start := time.Now()
	doc, err := c.store.Get(ctx, c.docType, id)
	c.metrics.Timing(MetricDocGetDuration, time.Since(start), "type", c.docType)

	if IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		c.metrics.Increment(MetricDocGetError, "type", c.docType)
		return nil, nil, err
	}

	value, err := c.decode(doc)
	if err != nil {
		c.metrics.Increment(MetricDocGetError, "type", c.docType)
		return nil, nil, err
	}
	c.metrics.Increment(MetricDocGetSuccess, "type", c.docType)
	return value, doc, nil
}

// Get returns the value of id, or ErrNotFound
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	value, _, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, WithContext(ErrNotFound, map[string]interface{}{"type": c.docType, "id": id})
	}
	return value, nil
}

// GetEntry returns a handle on id. Value is nil when the document is absent.
func (c *Collection[T]) GetEntry(ctx context.Context, id string) (*Entry[T], error) {
	e := &Entry[T]{ID: id, coll: c}
	if err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Search returns entries whose current terms match q. Candidates from the
// store are re-read and re-checked, so stale index hits are dropped.
func (c *Collection[T]) Search(ctx context.Context, q Query) ([]*Entry[T], error) {
	ids, err := c.store.Search(ctx, c.docType, q)
	if err != nil {
		return nil, err
	}
	c.metrics.Increment(MetricDocSearch, "type", c.docType)

	entries := make([]*Entry[T], 0, len(ids))
	for _, id := range ids {
		value, doc, err := c.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}

		terms := doc.Terms
		if c.terms != nil {
			terms = c.terms(value)
		}
		if !q.Match(terms) {
			continue
		}

		e := &Entry[T]{ID: id, Value: value, Version: doc.Version, coll: c}
		if err := e.rebase(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	c.metrics.Histogram(MetricDocSearchResults, float64(len(entries)), "type", c.docType)
	return entries, nil
}

// IndexMany writes items keyed by ID. mode must be WriteCreate or
// WriteAlways; each item reports its own result.
func (c *Collection[T]) IndexMany(ctx context.Context, items map[string]*T, mode WriteMode) []BatchOperation {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}

	return runBatch(ctx, ids, defaultBatchWorkers, func(ctx context.Context, id string) error {
		e := &Entry[T]{ID: id, Value: items[id], coll: c}
		switch mode {
		case WriteCreate:
			ok, err := e.TryCreate(ctx)
			if err == nil && !ok {
				return WithContext(ErrAlreadyExists, map[string]interface{}{"type": c.docType, "id": id})
			}
			return err
		case WriteAlways:
			return e.Update(ctx)
		default:
			return fmt.Errorf("IndexMany does not support write mode %s", mode)
		}
	})
}

// Mutate runs the optimistic read-modify-write loop on id.
//
// fn receives the current entry, may change e.Value (nil deletes) and
// reports whether a write is needed. On conflict the entry is refreshed and fn
// runs again, so fn must derive everything from e.Value and nothing captured
// before the loop. The loop continues until the write succeeds, fn declines,
// fn fails, ctx is done, or the retry policy gives up.
func (c *Collection[T]) Mutate(ctx context.Context, id string, fn func(e *Entry[T]) (bool, error)) (*Entry[T], error) {
	e, err := c.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		write, err := fn(e)
		if err != nil || !write {
			return e, err
		}

		var ok bool
		if e.Value == nil {
			ok, err = e.TryDelete(ctx)
		} else {
			ok, err = e.TryUpdate(ctx)
		}
		if err != nil {
			return nil, err
		}
		if ok {
			return e, nil
		}

		if c.retry.Exhausted(attempt) {
			return nil, WithContext(ErrConflict, map[string]interface{}{
				"type":     c.docType,
				"id":       id,
				"attempts": attempt,
			})
		}
		if err := c.retry.Wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
}
