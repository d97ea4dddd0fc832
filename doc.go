// Package contentbase is a document store for scraped content, built on a
// blob backend (S3, MinIO, GCS or the local filesystem) for storage and Redis
// for term search, locks, counters and caches.
//
// # Overview
//
// contentbase keeps typed documents in a versioned store and coordinates the
// processes writing to it. It provides:
//
//   - Optimistic read-modify-write loops over typed collections
//   - Term search with OR within a field and AND across fields
//   - FIFO in-process locks and Redis locks shared across processes
//   - Snapshot history of every document write, with rollback
//   - Read-through caches that survive penetration and stampedes
//   - Redis counters for per-user limits
//   - Full observability (Prometheus metrics + structured logging)
//
// # Quick Start
//
// Development setup with the filesystem backend and in-process locks:
//
//	backend := contentbase.NewFilesystemBackend("./data")
//	store := contentbase.NewBackendDocumentStore(backend, nil, nil)
//	notes := contentbase.NewCollection[Note](store, "note")
//
//	_, err := notes.Mutate(ctx, id, func(e *contentbase.Entry[Note]) (bool, error) {
//	    if e.Value == nil {
//	        e.Value = &Note{}
//	    }
//	    e.Value.Title = "hello"
//	    return true, nil
//	})
//
// Production setup with S3, Redis term index and Redis locks:
//
//	redisClient := redis.NewClient(contentbase.RedisOptions())
//	locker := contentbase.NewRedisLocker(redisClient, "contentbase")
//
//	s3Backend, _ := contentbase.NewS3BackendFromConfig(ctx, cfg)
//	backend := contentbase.NewInstrumentedBackend(
//	    contentbase.NewS3BackendWithLock(s3Backend, locker), metrics)
//
//	store := contentbase.NewBackendDocumentStore(backend,
//	    contentbase.NewTermIndex(redisClient, "contentbase"), logger)
//
// # Core Concepts
//
// Backend: blob storage with conditional writes. Versions are ETags (S3),
// object generations (GCS) or content hashes (filesystem).
//
// DocumentStore: versioned documents with searchable terms. Writes take a
// WriteMode: create only, replace only if the version matches, or always.
//
// Collection and Entry: a typed view of one document type. An Entry carries
// the value and the version it was read at; TryUpdate and TryDelete report
// false when someone else wrote first and refresh the entry. Mutate wraps the
// loop with backoff.
//
// Locker: mutual exclusion by key. MemoryLocker serves waiters in arrival
// order; RedisLocker extends that across processes and renews its key while
// held.
//
// SnapshotService: records creation, modification, deletion and rollback
// snapshots. Values are stored zstd-compressed next to the documents.
//
// CacheStore: caches computed values, including absent ones, and lets only
// one caller compute a missing key at a time.
//
// # Error Handling
//
// Errors wrap sentinels; use the Is* helpers:
//
//	book, err := books.Get(ctx, id)
//	if contentbase.IsNotFound(err) {
//	    // absent
//	}
//
// ErrConflict and ErrAlreadyExists are retryable. ErrConsistency means stored
// history is corrupt and retrying will not help.
//
// # Observability
//
// Every component takes a Logger and a Metrics. ZapLogger and
// PrometheusMetrics are the production implementations; NoOpLogger and
// NoOpMetrics are the defaults.
package contentbase
