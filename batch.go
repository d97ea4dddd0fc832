package contentbase

import (
	"context"
	"sync"
)

// BatchOperation is the outcome of one item of a batch
type BatchOperation struct {
	Key   string
	Error error
}

// BatchOperationResult summarizes the results of a batch operation
type BatchOperationResult struct {
	Total      int
	Successful int
	Failed     int
	Errors     []BatchOperation
}

// AnalyzeBatchResults counts successes and collects the failures
func AnalyzeBatchResults(operations []BatchOperation) *BatchOperationResult {
	result := &BatchOperationResult{
		Total:  len(operations),
		Errors: make([]BatchOperation, 0),
	}

	for _, op := range operations {
		if op.Error == nil {
			result.Successful++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, op)
		}
	}

	return result
}

// defaultBatchWorkers bounds the goroutines a batch runs at once
const defaultBatchWorkers = 8

// runBatch calls fn for every key with at most workers in flight and returns
// one BatchOperation per key, in key order. Keys not started before ctx is
// done report ctx.Err().
func runBatch(ctx context.Context, keys []string, workers int, fn func(ctx context.Context, key string) error) []BatchOperation {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	results := make([]BatchOperation, len(keys))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, key := range keys {
		results[i].Key = key

		select {
		case <-ctx.Done():
			results[i].Error = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i].Error = fn(ctx, k)
		}(i, key)
	}

	wg.Wait()
	return results
}
