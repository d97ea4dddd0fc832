package main

import (
	"fmt"
	"os"

	"github.com/adrianmcphee/contentbase"
	"github.com/spf13/cobra"
)

var (
	envDir      string
	metricsFile string
)

// RootCmd is the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "contentbase",
	Short: "Content store operations",
	Long: `contentbase manages a document store of scraped books on the local
filesystem, S3, MinIO or Google Cloud Storage, coordinated through Redis.

Configuration comes from the environment and an optional .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		l, logErr := contentbase.NewZapLoggerFromConfig("debug", "console")
		if logErr == nil {
			l.Error("command failed", "error", err)
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envDir, "env-dir", ".", "directory holding the .env file")
	RootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")
}
