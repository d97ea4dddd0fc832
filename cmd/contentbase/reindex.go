package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <type>...",
	Short: "Rebuild the Redis term index from stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			for _, docType := range args {
				n, err := a.docs.Reindex(cmd.Context(), docType)
				if err != nil {
					return fmt.Errorf("reindex %s: %w", docType, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents indexed\n", docType, n)
			}
			return nil
		})
	},
}

func init() {
	RootCmd.AddCommand(reindexCmd)
}
