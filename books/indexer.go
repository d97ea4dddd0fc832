package books

import (
	"context"
	"time"

	"github.com/adrianmcphee/contentbase"
)

// IndexLockKey serializes every merge of books, so two batches never both
// decide that the same book is new
const IndexLockKey = "index:book"

// Indexer merges scraped candidates into the book collection
type Indexer struct {
	books   *contentbase.Collection[Book]
	locker  contentbase.Locker
	now     func() time.Time
	logger  contentbase.Logger
	metrics contentbase.Metrics
}

// NewIndexer creates an indexer writing to books and serializing through locker
func NewIndexer(books *contentbase.Collection[Book], locker contentbase.Locker) *Indexer {
	return &Indexer{
		books:   books,
		locker:  locker,
		now:     time.Now,
		logger:  &contentbase.NoOpLogger{},
		metrics: &contentbase.NoOpMetrics{},
	}
}

// WithLogger sets the logger
func (ix *Indexer) WithLogger(logger contentbase.Logger) *Indexer {
	if logger != nil {
		ix.logger = logger
	}
	return ix
}

// WithMetrics sets the metrics collector
func (ix *Indexer) WithMetrics(metrics contentbase.Metrics) *Indexer {
	if metrics != nil {
		ix.metrics = metrics
	}
	return ix
}

// Index merges a batch of candidates and returns the stored book each unique
// candidate ended up in, in candidate order.
//
// The batch is first deduplicated in memory (DryMerge). Each survivor that
// carries a name and a weak identity tag is then folded into a stored book
// matching both, or created when nothing matches. Candidates without that
// signal are always created.
func (ix *Indexer) Index(ctx context.Context, candidates []*Book) ([]*Book, error) {
	lock, err := ix.locker.Enter(ctx, IndexLockKey)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	start := time.Now()
	unique, err := DryMerge(candidates)
	if err != nil {
		return nil, err
	}
	// Contents get their IDs once, whether they end up created or folded
	for _, b := range unique {
		for i := range b.Contents {
			if b.Contents[i].ID == "" {
				b.Contents[i].ID = contentbase.NewID()
			}
		}
	}
	ix.metrics.Histogram(contentbase.MetricMergeCandidates, float64(len(candidates)))
	ix.metrics.Histogram(contentbase.MetricMergeDryFolded, float64(len(candidates)-len(unique)))

	results := make([]*Book, 0, len(unique))
	lost := false
	for _, candidate := range unique {
		select {
		case <-lock.Lost():
			if !lost {
				ix.logger.Warn("index lock lost during merge", "merged", len(results), "remaining", len(unique)-len(results))
				lost = true
			}
		default:
		}

		book, err := ix.merge(ctx, candidate)
		if err != nil {
			return results, err
		}
		results = append(results, book)
	}

	ix.metrics.Timing(contentbase.MetricMergeDuration, time.Since(start))
	ix.logger.Info("book batch indexed",
		"candidates", len(candidates),
		"unique", len(unique),
		"duration", time.Since(start),
	)
	return results, nil
}

func (ix *Indexer) merge(ctx context.Context, candidate *Book) (*Book, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !candidate.Identifiable() {
			return ix.create(ctx, candidate)
		}

		q := contentbase.Query{}.
			Where("name", candidate.names()...).
			Where("identity", candidate.identityTags()...)
		matches, err := ix.books.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return ix.create(ctx, candidate)
		}

		book, gone, err := ix.foldInto(ctx, matches[0].ID, candidate)
		if err != nil {
			return nil, err
		}
		if !gone {
			return book, nil
		}
		// The match was deleted or changed identity after the search; start over
		ix.logger.Debug("merge target vanished, retrying", "book", matches[0].ID)
	}
}

// foldInto folds candidate into the stored book id. gone reports that the
// book no longer exists or no longer matches.
func (ix *Indexer) foldInto(ctx context.Context, id string, candidate *Book) (*Book, bool, error) {
	gone := false
	e, err := ix.books.Mutate(ctx, id, func(e *contentbase.Entry[Book]) (bool, error) {
		gone = e.Value == nil || !sameBook(e.Value, candidate)
		if gone {
			return false, nil
		}
		if !Fold(e.Value, candidate) {
			return false, nil
		}
		e.Value.UpdatedTime = ix.now().UTC()
		return true, nil
	})
	if err != nil || gone {
		return nil, gone, err
	}

	ix.metrics.Increment(contentbase.MetricMergeFolded)
	return e.Value, false, nil
}

func (ix *Indexer) create(ctx context.Context, candidate *Book) (*Book, error) {
	book, err := contentbase.DeepCopy(candidate)
	if err != nil {
		return nil, err
	}

	now := ix.now().UTC()
	book.CreatedTime = now
	book.UpdatedTime = now

	for {
		if book.ID == "" {
			book.ID = contentbase.NewID()
		}
		e, err := ix.books.GetEntry(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if e.Exists() {
			// Candidate IDs are only hints
			book.ID = ""
			continue
		}

		e.Value = book
		ok, err := e.TryCreate(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			ix.metrics.Increment(contentbase.MetricMergeCreated)
			return e.Value, nil
		}
		book.ID = ""
	}
}

// AddContent attaches content to a book. Adding a copy the book already has
// merges it instead. The book must exist.
func (ix *Indexer) AddContent(ctx context.Context, bookID string, content BookContent) (*Book, error) {
	if content.ID == "" {
		content.ID = contentbase.NewID()
	}

	e, err := ix.books.Mutate(ctx, bookID, func(e *contentbase.Entry[Book]) (bool, error) {
		if e.Value == nil {
			return false, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"book": bookID})
		}
		if !foldContent(e.Value, content) {
			return false, nil
		}
		e.Value.UpdatedTime = ix.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// Edit replaces the metadata of a stored book with edited's. Identity,
// contents and timestamps are kept. Nothing is written when edited matches
// the stored book.
func (ix *Indexer) Edit(ctx context.Context, bookID string, edited *Book) (*Book, error) {
	if edited == nil {
		return nil, contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{"book": bookID, "reason": "nothing to edit"})
	}

	e, err := ix.books.Mutate(ctx, bookID, func(e *contentbase.Entry[Book]) (bool, error) {
		if e.Value == nil {
			return false, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"book": bookID})
		}
		changed, err := contentbase.ApplyChanges(e.Value, edited, "ID", "Contents", "CreatedTime", "UpdatedTime")
		if err != nil || !changed {
			return false, err
		}
		e.Value.UpdatedTime = ix.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// RemoveContent detaches a content from a book. A book left without content
// is deleted, and nil is returned for it.
func (ix *Indexer) RemoveContent(ctx context.Context, bookID, contentID string) (*Book, error) {
	if contentID == "" {
		return nil, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"book": bookID})
	}
	e, err := ix.books.Mutate(ctx, bookID, func(e *contentbase.Entry[Book]) (bool, error) {
		if e.Value == nil {
			return false, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"book": bookID})
		}

		kept := e.Value.Contents[:0:0]
		for _, c := range e.Value.Contents {
			if c.ID != contentID {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(e.Value.Contents) {
			return false, contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{
				"book":    bookID,
				"content": contentID,
			})
		}

		if len(kept) == 0 {
			e.Value = nil
			return true, nil
		}
		e.Value.Contents = kept
		e.Value.UpdatedTime = ix.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}
