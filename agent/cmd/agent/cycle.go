package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/notify"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/pipeline"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/store"
)

// runCycle builds a pipeline from cfg and runs it once. The summary is
// recorded in runs when it is non-nil.
func runCycle(ctx context.Context, cfg *config.Config, runs *store.Runs, dryRun bool, logger *slog.Logger) (*pipeline.Result, error) {
	p, err := pipeline.FromConfig(ctx, cfg, pipeline.Deps{DryRun: dryRun, Logger: logger})
	if err != nil {
		logger.Error("pipeline setup failed", "err", err)
		if !dryRun {
			pipeline.NewSink(cfg, logger).Send(ctx, notify.ErrorNotification(err, "Pipeline setup"))
		}
		return nil, err
	}

	res, err := p.Run(ctx)
	if res != nil && runs != nil {
		runs.Add(res.Summary())
	}
	if err != nil {
		return res, err
	}
	if !res.Delivered {
		return res, fmt.Errorf("report delivery failed")
	}
	return res, nil
}
