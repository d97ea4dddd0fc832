package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/adrianmcphee/contentbase"
	"github.com/adrianmcphee/contentbase/books"
	"github.com/spf13/cobra"
)

var (
	ingestCommitter string
	ingestReason    string
	ingestSource    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Merge a JSON array of scraped books into the store",
	Long: `Reads a JSON array of books and merges them into the store. Books that
share a name and an artist or circle with a stored book are folded into it;
everything else is created. Every change is recorded in the book's history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch contentbase.SnapshotSource(ingestSource) {
		case contentbase.SourceSystem, contentbase.SourceUser, contentbase.SourceScraper:
		default:
			return fmt.Errorf("unknown source %q, expected system, user or scraper", ingestSource)
		}

		candidates, err := readBooks(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			ctx := contentbase.WithSnapshotEvent(cmd.Context(), contentbase.SnapshotEvent{
				Source:      contentbase.SnapshotSource(ingestSource),
				CommitterID: ingestCommitter,
				Reason:      ingestReason,
			})

			indexer := books.NewIndexer(a.books(), a.locker).
				WithLogger(a.logger).
				WithMetrics(a.metrics)
			stored, err := indexer.Index(ctx, candidates)
			if err != nil {
				return fmt.Errorf("indexed %d books before failing: %w", len(stored), err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCONTENTS")
			for _, b := range stored {
				fmt.Fprintf(w, "%s\t%s\t%d\n", b.ID, b.PrimaryName, len(b.Contents))
			}
			return w.Flush()
		})
	},
}

func readBooks(path string, stdin io.Reader) ([]*books.Book, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var candidates []*books.Book
	if err := json.NewDecoder(r).Decode(&candidates); err != nil {
		return nil, contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{
			"file":  path,
			"error": err.Error(),
		})
	}
	return candidates, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", string(contentbase.SourceScraper), "snapshot source: system, user or scraper")
	ingestCmd.Flags().StringVar(&ingestCommitter, "committer", "", "committer recorded in snapshots")
	ingestCmd.Flags().StringVar(&ingestReason, "reason", "", "reason recorded in snapshots")
	RootCmd.AddCommand(ingestCmd)
}
