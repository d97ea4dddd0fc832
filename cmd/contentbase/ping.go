package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the backend and Redis are reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.backend.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("backend %s: %w", a.cfg.Backend.Type, err)
			}
			if err := a.redis.Ping(cmd.Context()).Err(); err != nil {
				return fmt.Errorf("redis %s: %w", a.cfg.Redis.Addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s (%s): ok\nredis %s: ok\n",
				a.cfg.Backend.Type, a.cfg.Backend.Bucket, a.cfg.Redis.Addr)
			return nil
		})
	},
}

func init() {
	RootCmd.AddCommand(pingCmd)
}
