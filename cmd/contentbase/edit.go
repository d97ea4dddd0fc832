package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/adrianmcphee/contentbase"
	"github.com/adrianmcphee/contentbase/books"
	"github.com/spf13/cobra"
)

var (
	editCommitter string
	editReason    string
)

var editCmd = &cobra.Command{
	Use:   "edit <book-id> <file|->",
	Short: "Replace a book's metadata",
	Long: `Reads one JSON book and copies its names, tags, category, language and
rating onto the stored book. Contents and timestamps are left alone. The
change is recorded in the book's history as a user edit.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := cmd.InOrStdin()
		if args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		var edited books.Book
		if err := json.NewDecoder(r).Decode(&edited); err != nil {
			return contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{
				"file":  args[1],
				"error": err.Error(),
			})
		}

		return withApp(cmd.Context(), func(a *app) error {
			ctx := contentbase.WithSnapshotEvent(cmd.Context(), contentbase.SnapshotEvent{
				Source:      contentbase.SourceUser,
				CommitterID: editCommitter,
				Reason:      editReason,
			})

			indexer := books.NewIndexer(a.books(), a.locker).
				WithLogger(a.logger).
				WithMetrics(a.metrics)
			b, err := indexer.Edit(ctx, args[0], &edited)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated at %s\n", b.ID, b.UpdatedTime.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		})
	},
}

func init() {
	editCmd.Flags().StringVar(&editCommitter, "committer", "", "committer recorded in the snapshot")
	editCmd.Flags().StringVar(&editReason, "reason", "", "reason recorded in the snapshot")
	RootCmd.AddCommand(editCmd)
}
