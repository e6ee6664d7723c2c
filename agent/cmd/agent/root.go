package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Infrastructure health monitoring agent",
	Long: `Polls servers, containers, cloud instances, APIs, databases, buckets,
model endpoints and certificates on a schedule, dampens first-time threshold
breaches, and delivers one consolidated report per cycle.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")
}

// setup loads the config and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.New(os.Stderr, level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"path", configPath,
		"schedule", cfg.Monitoring.Schedule,
		"targets", cfg.Targets.Count(),
		"state_dir", cfg.Monitoring.StateDir,
		"analysis", cfg.LLM != nil,
	)
	return cfg, logger, nil
}
