package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/notify"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(notifyTestCmd)
}

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a health-check message through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if !pipeline.NewSink(cfg, logger).Send(cmd.Context(), notify.HealthCheckMessage) {
			return errors.New("health-check message not delivered")
		}
		logger.Info("health-check message delivered")
		return nil
	},
}
