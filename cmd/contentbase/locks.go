package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/spf13/cobra"
)

var cleanupMinAge time.Duration

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and repair distributed locks",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List held locks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLockManager(cmd, func(lm *contentbase.LockManager) error {
			locks, err := lm.ListLocks(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tAGE\tTTL\tTOKEN")
			for _, l := range locks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Key, l.Age(now).Round(time.Millisecond), l.TTL, l.Token)
			}
			return w.Flush()
		})
	},
}

var locksReleaseCmd = &cobra.Command{
	Use:   "release <key>",
	Short: "Force-release a lock regardless of its holder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLockManager(cmd, func(lm *contentbase.LockManager) error {
			if err := lm.ForceRelease(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
			return nil
		})
	},
}

var locksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete locks held longer than --min-age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLockManager(cmd, func(lm *contentbase.LockManager) error {
			removed, err := lm.CleanupOrphanedLocks(cmd.Context(), cleanupMinAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned locks\n", removed)
			return nil
		})
	},
}

func withLockManager(cmd *cobra.Command, fn func(lm *contentbase.LockManager) error) error {
	return withApp(cmd.Context(), func(a *app) error {
		if !a.cfg.Lock.Distributed {
			return fmt.Errorf("locks are kept in process (LOCK_DISTRIBUTED=false), nothing to inspect")
		}
		return fn(contentbase.NewLockManager(a.redis, a.cfg.Redis.Prefix, a.logger, a.metrics))
	})
}

func init() {
	locksCleanupCmd.Flags().DurationVar(&cleanupMinAge, "min-age", 10*time.Minute, "minimum age of a lock to delete")
	locksCmd.AddCommand(locksListCmd, locksReleaseCmd, locksCleanupCmd)
	RootCmd.AddCommand(locksCmd)
}
