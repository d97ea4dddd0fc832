package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/adrianmcphee/contentbase/books"
	"github.com/spf13/cobra"
)

var showFresh bool

var showCmd = &cobra.Command{
	Use:   "show <book-id>",
	Short: "Print a book, reading through the Redis cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			cache := a.bookCache()
			if showFresh {
				if _, err := cache.Delete(cmd.Context(), args[0]); err != nil {
					a.logger.Warn("failed to evict cached book", "id", args[0], "error", err)
				}
			}

			coll := a.books()
			book, err := cache.Get(cmd.Context(), args[0], func(ctx context.Context) (*books.Book, error) {
				b, err := coll.Get(ctx, args[0])
				if contentbase.IsNotFound(err) {
					return nil, nil
				}
				return b, err
			})
			if err != nil {
				return err
			}
			if book == nil {
				return contentbase.WithContext(contentbase.ErrNotFound, map[string]interface{}{"type": books.DocType, "id": args[0]})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(book)
		})
	},
}

// bookCache caches book reads in Redis. A failing Redis opens the breaker and
// reads fall through to the store.
func (a *app) bookCache() *contentbase.CacheStore[books.Book] {
	breaker := contentbase.NewCircuitBreaker(5, 30*time.Second).
		WithStateChangeCallback(func(from, to contentbase.CircuitState) {
			a.logger.Warn("cache circuit changed state", "from", from, "to", to)
		})
	provider := contentbase.NewRedisCacheProvider(a.redis, a.cfg.Redis.Prefix).WithCircuitBreaker(breaker)

	return contentbase.NewCacheStore[books.Book](books.DocType, provider).
		WithLocker(a.locker).
		WithTTL(a.cfg.Cache.TTL).
		WithLogger(a.logger).
		WithMetrics(a.metrics)
}

func init() {
	showCmd.Flags().BoolVar(&showFresh, "fresh", false, "evict the cached copy first")
	RootCmd.AddCommand(showCmd)
}
