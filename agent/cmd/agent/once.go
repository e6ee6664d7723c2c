package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/lock"
)

var dryRun bool

func init() {
	onceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose the report and print it instead of delivering")
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single monitoring cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		l, err := lock.Acquire(cfg.Monitoring.LockPath())
		if err != nil {
			return err
		}
		defer l.Release() //nolint:errcheck

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		res, err := runCycle(ctx, cfg, nil, dryRun, logger)
		if dryRun && res != nil {
			fmt.Fprintln(cmd.OutOrStdout(), res.Report)
		}
		return err
	},
}
