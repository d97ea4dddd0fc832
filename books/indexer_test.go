package books

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(store contentbase.DocumentStore) (*Indexer, *contentbase.Collection[Book]) {
	coll := NewCollection(store)
	ix := NewIndexer(coll, contentbase.NewMemoryLocker())
	ix.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return ix, coll
}

func allBooks(t *testing.T, coll *contentbase.Collection[Book]) []*contentbase.Entry[Book] {
	t.Helper()
	entries, err := coll.Search(context.Background(), contentbase.Query{})
	require.NoError(t, err)
	return entries
}

func TestIndexer_CreatesAndFolds(t *testing.T) {
	ctx := context.Background()
	metrics := contentbase.NewInMemoryMetrics()
	ix, coll := newTestIndexer(contentbase.NewMemoryDocumentStore())
	ix.WithMetrics(metrics)

	first, err := ix.Index(ctx, []*Book{
		book("Summer Days", "", artist("P"), BookContent{Source: "s1", SourceID: "1"}),
		book("Winter", "", artist("P"), BookContent{Source: "s1", SourceID: "2"}),
		book("Summer Days", "", artist("P"), BookContent{Source: "s2", SourceID: "A"}),
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Len(t, first[0].Contents, 2, "dry merge folded the batch duplicate")
	for _, c := range first[0].Contents {
		assert.NotEmpty(t, c.ID, "contents get IDs on creation")
	}

	second, err := ix.Index(ctx, []*Book{
		book("Natsu", "summer days", map[TagKind][]string{TagArtist: {"p"}, TagCircle: {"Club"}},
			BookContent{Source: "s3", SourceID: "x"}),
	})
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].ID, second[0].ID, "folded into the stored book")
	assert.Equal(t, "Summer Days", second[0].PrimaryName)
	assert.Equal(t, []string{"Club"}, second[0].Tags[TagCircle])
	assert.Len(t, second[0].Contents, 3)

	assert.Len(t, allBooks(t, coll), 2)
	assert.Equal(t, 2, metrics.Count(contentbase.MetricMergeCreated))
	assert.Equal(t, 1, metrics.Count(contentbase.MetricMergeFolded))
}

func TestIndexer_RequiresBothNameAndTag(t *testing.T) {
	ctx := context.Background()
	ix, coll := newTestIndexer(contentbase.NewMemoryDocumentStore())

	_, err := ix.Index(ctx, []*Book{book("Same Name", "", artist("P"))})
	require.NoError(t, err)

	// Same name, different artist: a different book
	_, err = ix.Index(ctx, []*Book{book("Same Name", "", artist("Q"))})
	require.NoError(t, err)

	// Same artist, different name: a different book
	_, err = ix.Index(ctx, []*Book{book("Other", "", artist("P"))})
	require.NoError(t, err)

	// No identity signal: always new
	_, err = ix.Index(ctx, []*Book{book("Same Name", "", nil)})
	require.NoError(t, err)
	_, err = ix.Index(ctx, []*Book{book("Same Name", "", nil)})
	require.NoError(t, err)

	assert.Len(t, allBooks(t, coll), 5)
}

func TestIndexer_ConcurrentBatchesDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	ix, coll := newTestIndexer(contentbase.NewMemoryDocumentStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ix.Index(ctx, []*Book{
				book("Shared", "", artist("P"), BookContent{Source: "s", SourceID: string(rune('a' + i))}),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	books := allBooks(t, coll)
	require.Len(t, books, 1)
	assert.Len(t, books[0].Value.Contents, 10)
}

// vanishingStore deletes victim right after the first time it is read, so a
// merge sees it in search results but not when it goes to write
type vanishingStore struct {
	contentbase.DocumentStore
	mu     sync.Mutex
	victim string
	reads  int
}

func (s *vanishingStore) Get(ctx context.Context, docType, id string) (*contentbase.Document, error) {
	doc, err := s.DocumentStore.Get(ctx, docType, id)
	if err != nil || id != s.victim {
		return doc, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads == 1 {
		if err := s.DocumentStore.Delete(ctx, docType, id, doc.Version); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func TestIndexer_MatchDeletedDuringMerge(t *testing.T) {
	ctx := context.Background()
	store := &vanishingStore{DocumentStore: contentbase.NewMemoryDocumentStore()}
	ix, coll := newTestIndexer(store)

	created, err := ix.Index(ctx, []*Book{book("Title", "", artist("P"))})
	require.NoError(t, err)
	store.victim = created[0].ID

	merged, err := ix.Index(ctx, []*Book{book("Title", "", artist("P"), BookContent{Source: "s", SourceID: "1"})})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	assert.NotEqual(t, created[0].ID, merged[0].ID, "recreated after the match vanished")
	books := allBooks(t, coll)
	require.Len(t, books, 1)
	assert.Len(t, books[0].Value.Contents, 1)
}

func TestIndexer_AddRemoveContent(t *testing.T) {
	ctx := context.Background()
	ix, coll := newTestIndexer(contentbase.NewMemoryDocumentStore())

	created, err := ix.Index(ctx, []*Book{book("Title", "", artist("P"), BookContent{Source: "s1", SourceID: "1"})})
	require.NoError(t, err)
	id := created[0].ID

	b, err := ix.AddContent(ctx, id, BookContent{Source: "s2", SourceID: "2", PageCount: 10})
	require.NoError(t, err)
	require.Len(t, b.Contents, 2)
	added := b.Contents[1].ID
	require.NotEmpty(t, added)

	// Same copy again merges
	b, err = ix.AddContent(ctx, id, BookContent{Source: "s2", SourceID: "2", Sources: []string{"https://s2/2"}})
	require.NoError(t, err)
	require.Len(t, b.Contents, 2)
	assert.Equal(t, []string{"https://s2/2"}, b.Contents[1].Sources)

	_, err = ix.AddContent(ctx, "missing", BookContent{Source: "s"})
	assert.True(t, contentbase.IsNotFound(err))

	b, err = ix.RemoveContent(ctx, id, added)
	require.NoError(t, err)
	require.Len(t, b.Contents, 1)

	_, err = ix.RemoveContent(ctx, id, added)
	assert.True(t, contentbase.IsNotFound(err), "content already removed")

	b, err = ix.RemoveContent(ctx, id, b.Contents[0].ID)
	require.NoError(t, err)
	assert.Nil(t, b, "book without content is deleted")

	_, err = coll.Get(ctx, id)
	assert.True(t, contentbase.IsNotFound(err))
}

func TestIndexer_FoldedContentsGetIDs(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(contentbase.NewMemoryDocumentStore())

	_, err := ix.Index(ctx, []*Book{book("X", "", artist("a1"), BookContent{Source: "s1", SourceID: "1"})})
	require.NoError(t, err)

	candidate := book("X", "", artist("a1"), BookContent{Source: "s2", SourceID: "2"})
	folded, err := ix.Index(ctx, []*Book{candidate})
	require.NoError(t, err)
	require.Len(t, folded[0].Contents, 2)
	for _, c := range folded[0].Contents {
		assert.NotEmpty(t, c.ID, "content %s:%s has no ID", c.Source, c.SourceID)
	}
	assert.Empty(t, candidate.Contents[0].ID, "candidate is not modified")

	_, err = ix.RemoveContent(ctx, folded[0].ID, "")
	assert.True(t, contentbase.IsNotFound(err))

	b, err := ix.RemoveContent(ctx, folded[0].ID, folded[0].Contents[1].ID)
	require.NoError(t, err)
	require.Len(t, b.Contents, 1)
	assert.Equal(t, "s1", b.Contents[0].Source)
}

func TestIndexer_Edit(t *testing.T) {
	ctx := context.Background()
	ix, coll := newTestIndexer(contentbase.NewMemoryDocumentStore())

	created, err := ix.Index(ctx, []*Book{book("Title", "", artist("P"), BookContent{Source: "s1", SourceID: "1"})})
	require.NoError(t, err)
	id := created[0].ID
	stored, err := coll.GetEntry(ctx, id)
	require.NoError(t, err)

	edited := book("Title", "English", map[TagKind][]string{TagArtist: {"P"}, TagCircle: {"Ring"}})
	edited.ID = "ignored"
	ix.now = func() time.Time { return time.Unix(1_800_000_000, 0) }

	b, err := ix.Edit(ctx, id, edited)
	require.NoError(t, err)
	assert.Equal(t, id, b.ID)
	assert.Equal(t, "English", b.EnglishName)
	assert.Equal(t, []string{"Ring"}, b.Tags[TagCircle])
	assert.Len(t, b.Contents, 1, "contents are not edited")
	assert.Equal(t, created[0].CreatedTime, b.CreatedTime)
	assert.Equal(t, time.Unix(1_800_000_000, 0).UTC(), b.UpdatedTime)

	edited.Tags[TagCircle][0] = "changed"
	after, err := coll.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ring"}, after.Value.Tags[TagCircle], "stored book does not alias the edit")
	assert.NotEqual(t, stored.Version, after.Version)

	// Same edit again writes nothing
	edited.Tags[TagCircle][0] = "Ring"
	_, err = ix.Edit(ctx, id, edited)
	require.NoError(t, err)
	again, err := coll.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, after.Version, again.Version)

	_, err = ix.Edit(ctx, "missing", edited)
	assert.True(t, contentbase.IsNotFound(err))
}

func TestIndexer_RecordsSnapshots(t *testing.T) {
	ctx := context.Background()
	svc, err := contentbase.NewSnapshotService(contentbase.NewMemoryDocumentStore(), contentbase.NewFilesystemBackend(t.TempDir()))
	require.NoError(t, err)
	defer svc.Close()

	coll := NewCollection(contentbase.NewMemoryDocumentStore()).WithSnapshots(svc)
	ix := NewIndexer(coll, contentbase.NewMemoryLocker())

	scraper := contentbase.WithSnapshotEvent(ctx, contentbase.SnapshotEvent{Source: contentbase.SourceScraper, Reason: "s1 crawl"})
	created, err := ix.Index(scraper, []*Book{book("Title", "", artist("P"))})
	require.NoError(t, err)
	_, err = ix.Index(scraper, []*Book{book("Title", "", artist("P"), BookContent{Source: "s1", SourceID: "1"})})
	require.NoError(t, err)

	history, err := svc.History(ctx, DocType, created[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, contentbase.SnapshotModification, history[0].Type)
	assert.Equal(t, contentbase.SnapshotCreation, history[1].Type)
	assert.Equal(t, contentbase.SourceScraper, history[0].Source)

	var before Book
	ok, err := svc.GetValue(ctx, history[1], &before)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, before.Contents)
}
