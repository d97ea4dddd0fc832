package main

import (
	"fmt"
	"io"
	"os"

	"github.com/adrianmcphee/contentbase/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportOutput    string
	exportHistory   bool
	exportSorted    bool
	importOverwrite bool
)

var exportCmd = &cobra.Command{
	Use:   "export <type>...",
	Short: "Write documents as newline-delimited JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		return withApp(cmd.Context(), func(a *app) error {
			opts := export.Options{Sorted: exportSorted}
			if exportHistory {
				opts.History = a.snapshots
			}
			for _, docType := range args {
				n, err := export.Documents(cmd.Context(), out, a.docs, docType, opts)
				if err != nil {
					return err
				}
				a.logger.Info("documents exported", "type", docType, "count", n)
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Load documents written by export",
	Long: `Loads documents written by export. Existing documents are kept unless
--overwrite is set. Histories in the file are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		return withApp(cmd.Context(), func(a *app) error {
			n, err := export.Import(cmd.Context(), in, a.docs, importOverwrite)
			if err != nil {
				return fmt.Errorf("imported %d documents before failing: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents\n", n)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, stdout when empty")
	exportCmd.Flags().BoolVar(&exportHistory, "history", false, "include each document's snapshots")
	exportCmd.Flags().BoolVar(&exportSorted, "sorted", false, "order documents by id")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace existing documents")
	RootCmd.AddCommand(exportCmd, importCmd)
}
