package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/adrianmcphee/contentbase/books"
	"github.com/spf13/cobra"
)

var (
	historyJSON       bool
	rollbackReason    string
	rollbackCommitter string
)

var historyCmd = &cobra.Command{
	Use:   "history <type> <id>",
	Short: "List the snapshots of a document, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			history, err := a.snapshots.History(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if historyJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(history)
			}
			return printSnapshots(cmd.OutOrStdout(), history)
		})
	},
}

func printSnapshots(out io.Writer, snaps []*contentbase.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTYPE\tSOURCE\tCOMMITTER\tREASON\tRESTORES")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Time.Format(time.RFC3339), s.Type, s.Source, s.CommitterID, s.Reason, s.RollbackID)
	}
	return w.Flush()
}

// rollbackers restore a snapshot into the collection of its document type
var rollbackers = map[string]func(ctx context.Context, a *app, snapshotID string) (*contentbase.RollbackResult, error){
	books.DocType: func(ctx context.Context, a *app, snapshotID string) (*contentbase.RollbackResult, error) {
		return contentbase.Rollback(ctx, a.snapshots, a.books(), snapshotID)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <snapshot-id>",
	Short: "Restore a document to the value recorded by a snapshot",
	Long: `Restores the document a snapshot belongs to. Restoring a creation or
modification snapshot writes its value; restoring a deletion snapshot deletes
the document. A rollback snapshot restores whatever it restored. Nothing is
written when the document already matches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			snap, err := a.snapshots.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rollback, ok := rollbackers[snap.TargetType]
			if !ok {
				return fmt.Errorf("documents of type %q cannot be rolled back", snap.TargetType)
			}

			ctx := contentbase.WithSnapshotEvent(cmd.Context(), contentbase.SnapshotEvent{
				Source:      contentbase.SourceUser,
				CommitterID: rollbackCommitter,
				Reason:      rollbackReason,
			})
			result, err := rollback(ctx, a, snap.ID)
			if err != nil {
				return err
			}

			if !result.Changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s already matches %s\n", snap.TargetType, snap.TargetID, snap.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s restored to %s (%s)\n",
				snap.TargetType, snap.TargetID, result.Snapshot.ID, result.Snapshot.Type)
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print snapshots as JSON")
	rollbackCmd.Flags().StringVar(&rollbackCommitter, "committer", "", "committer recorded in the rollback snapshot")
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "reason recorded in the rollback snapshot")
	RootCmd.AddCommand(historyCmd, rollbackCmd)
}
