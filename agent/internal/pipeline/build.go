package pipeline

import (
	"context"
	"log/slog"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/analysis"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/collector"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/dampen"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/llm"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/notify"
)

// Deps overrides the external clients a configured pipeline uses.
type Deps struct {
	Collector collector.Deps

	// Analyzer replaces the Bedrock-backed analysis agent.
	Analyzer analysis.Analyzer

	// Sink replaces the sinks built from the telegram and webhooks sections.
	Sink notify.Sink

	DryRun bool
	Logger *slog.Logger
}

// FromConfig builds a pipeline for one run of cfg. Call it again after a
// config reload so new targets and thresholds take effect.
func FromConfig(ctx context.Context, cfg *config.Config, deps Deps) (*Pipeline, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Collector.Logger = logger

	reg, err := collector.FromConfig(cfg, deps.Collector)
	if err != nil {
		return nil, err
	}

	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = NewAnalyzer(ctx, cfg, logger)
	}
	sink := deps.Sink
	if sink == nil {
		sink = NewSink(cfg, logger)
	}

	historyPath := cfg.Monitoring.HistoryPath()
	return New(Options{
		Collectors: reg.Collectors(),
		Thresholds: cfg.Thresholds,
		OpenStore: func() dampen.Counter {
			return history.Open(historyPath, history.WithLogger(logger))
		},
		Analyzer: analyzer,
		Sink:     sink,
		Timeout:  cfg.Monitoring.Timeout,
		DryRun:   deps.DryRun,
		Logger:   logger,
	}), nil
}

// NewAnalyzer returns the analysis agent for cfg, or analysis.Noop when no
// model is configured or its client cannot be built.
func NewAnalyzer(ctx context.Context, cfg *config.Config, logger *slog.Logger) analysis.Analyzer {
	if cfg.LLM == nil {
		return analysis.Noop{}
	}
	client, err := llm.NewBedrock(ctx, cfg.LLM.Region, cfg.LLM.Model, cfg.LLM.MaxTokens)
	if err != nil {
		logger.Warn("pipeline: analysis disabled", "err", err)
		return analysis.Noop{}
	}
	budget := analysis.NewBudget(cfg.LLM.DailyBudgetUSD, cfg.Monitoring.BudgetPath(), logger)
	return analysis.NewAgent(client, budget, logger)
}

// NewSink returns the delivery sinks configured in cfg. With none
// configured, reports are logged and dropped.
func NewSink(cfg *config.Config, logger *slog.Logger) notify.Sink {
	var sinks notify.Multi
	if cfg.Telegram.Enabled() {
		sinks = append(sinks, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, notify.WithLogger(logger)))
	}
	for _, wc := range cfg.Webhooks {
		url := wc.URL()
		if url == "" {
			logger.Warn("pipeline: webhook url not set, skipping", "type", wc.Type, "url_env", wc.URLEnv)
			continue
		}
		wh, err := notify.NewWebhook(wc.Type, url, logger)
		if err != nil {
			logger.Warn("pipeline: webhook skipped", "type", wc.Type, "err", err)
			continue
		}
		sinks = append(sinks, wh)
	}
	switch len(sinks) {
	case 0:
		logger.Warn("pipeline: no delivery channel configured")
		return notify.Discard{Logger: logger}
	case 1:
		return sinks[0]
	}
	return sinks
}
