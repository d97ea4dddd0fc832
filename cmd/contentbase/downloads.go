package main

import (
	"encoding/json"
	"fmt"

	"github.com/adrianmcphee/contentbase"
	"github.com/adrianmcphee/contentbase/downloads"
	"github.com/spf13/cobra"
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Open, close and count download sessions",
}

var downloadsOpenCmd = &cobra.Command{
	Use:   "open <user> <book> <content>",
	Short: "Open a download session",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			session, err := newDownloads(a).Create(cmd.Context(), args[0], args[1], args[2])
			if contentbase.IsResourceExhausted(err) {
				return fmt.Errorf("user %s has %d downloads open already: %w", args[0], a.cfg.Downloads.MaxConcurrent, err)
			}
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(session)
		})
	},
}

var downloadsCloseCmd = &cobra.Command{
	Use:   "close <session>",
	Short: "Close a download session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return newDownloads(a).Close(cmd.Context(), args[0])
		})
	},
}

var downloadsActiveCmd = &cobra.Command{
	Use:   "active <user>",
	Short: "Print how many sessions a user has open",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			n, err := newDownloads(a).Active(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d\n", n, a.cfg.Downloads.MaxConcurrent)
			return nil
		})
	},
}

func newDownloads(a *app) *downloads.Service {
	return downloads.NewService(a.docs, a.locker, a.redis, a.cfg.Redis.Prefix, downloads.Config{
		MaxConcurrent: a.cfg.Downloads.MaxConcurrent,
		SessionTTL:    a.cfg.Downloads.SessionTTL,
	}).WithLogger(a.logger).WithMetrics(a.metrics)
}

var scraperStateCmd = &cobra.Command{
	Use:   "scraper-state <scraper>",
	Short: "Print the saved state of a scraper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			state, err := contentbase.LoadScraperState[json.RawMessage](cmd.Context(), a.backend, args[0])
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "scraper %s has no saved state\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(*state))
			return nil
		})
	},
}

func init() {
	downloadsCmd.AddCommand(downloadsOpenCmd, downloadsCloseCmd, downloadsActiveCmd)
	RootCmd.AddCommand(downloadsCmd, scraperStateCmd)
}
