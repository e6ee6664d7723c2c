package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/aggregate"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/analysis"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/collector"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/dampen"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/metrics"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/notify"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/report"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/store"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// ErrCollectorTimeout marks a collector cut off by the run deadline.
var ErrCollectorTimeout = errors.New("collector timed out")

// Options configures a Pipeline.
type Options struct {
	Collectors []collector.Collector
	Thresholds threshold.Set

	// OpenStore returns the incident counter store for one run. It is called
	// once per run, after collection.
	OpenStore func() dampen.Counter

	Analyzer analysis.Analyzer
	Sink     notify.Sink

	// Timeout bounds the whole run: collection, analysis and delivery. The
	// failure notification is sent outside it. Zero means no deadline.
	Timeout time.Duration

	// DryRun composes the report but skips delivery.
	DryRun bool

	Logger *slog.Logger
}

// Pipeline runs monitoring cycles. A Pipeline must not run concurrently
// with another one sharing the same counter store file.
type Pipeline struct {
	collectors []collector.Collector
	set        threshold.Set
	openStore  func() dampen.Counter
	analyzer   analysis.Analyzer
	sink       notify.Sink
	timeout    time.Duration
	dryRun     bool
	now        func() time.Time
	logger     *slog.Logger
}

// New builds a Pipeline. A nil Analyzer disables analysis and a nil Sink
// discards reports.
func New(o Options) *Pipeline {
	p := &Pipeline{
		collectors: o.Collectors,
		set:        o.Thresholds,
		openStore:  o.OpenStore,
		analyzer:   o.Analyzer,
		sink:       o.Sink,
		timeout:    o.Timeout,
		dryRun:     o.DryRun,
		now:        time.Now,
		logger:     o.Logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.analyzer == nil {
		p.analyzer = analysis.Noop{}
	}
	if p.sink == nil {
		p.sink = notify.Discard{Logger: p.logger}
	}
	return p
}

// Result describes a finished run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	All      []types.Observation
	Issues   []types.Observation
	Dampened int

	Analysis analysis.Payload
	Report   string
	Tokens   int
	Errors   []string

	// Delivered is false when every sink failed. Dry runs report true.
	Delivered bool
	DryRun    bool
}

// Summary converts r for the status store.
func (r *Result) Summary() store.Run {
	run := store.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		Overall:    report.Overall(r.Issues),
		Total:      len(r.All),
		Dampened:   r.Dampened,
		Tokens:     r.Tokens,
		Delivered:  r.Delivered,
		DryRun:     r.DryRun,
		Errors:     append([]string{}, r.Errors...),
		Issues:     append([]types.Observation{}, r.Issues...),
	}
	for _, o := range r.Issues {
		switch o.Severity {
		case types.SeverityRed:
			run.Red++
		case types.SeverityYellow:
			run.Yellow++
		default:
			run.Unknown++
		}
	}
	return run
}

// Run executes one cycle. The returned error is non-nil only when the run
// aborted; in that case an error notification has been attempted and the
// Result holds whatever was computed before the failure.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	st := newState(p.now())
	res = &Result{RunID: st.RunID, StartedAt: st.StartedAt, DryRun: p.dryRun}
	logger := p.logger.With("run_id", st.RunID)
	logger.Info("pipeline: run started", "collectors", len(p.collectors))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline: panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("pipeline: panic: %v", r)
		}
		res.Duration = p.now().Sub(st.StartedAt)
		res.Tokens = st.Tokens
		res.Errors = st.Errors
		if err != nil {
			metrics.ObserveRun(res.Duration, metrics.OutcomeError)
			p.notifyFailure(ctx, logger, err)
		}
	}()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	outcomes := p.collect(runCtx, logger)
	agg := aggregate.Aggregate(outcomes)
	st.Merge(Update{Errors: agg.Errors})
	logger.Info("pipeline: collection complete", "total", len(agg.All), "issues", len(agg.Issues), "errors", len(agg.Errors))

	filtered, err := p.dampen(agg.All, logger)
	if err != nil {
		res.All, res.Issues = agg.All, agg.Issues
		return res, err
	}
	res.All, res.Issues, res.Dampened = filtered.All, filtered.Issues, filtered.Dampened
	metrics.AddDampened(filtered.Dampened)
	for _, o := range res.All {
		metrics.ObserveSeverity(o.Collector, string(o.Severity))
	}

	st.Merge(p.analyze(runCtx, res, logger))

	res.Report = report.Compose(report.Input{
		All:         res.All,
		Issues:      res.Issues,
		Analysis:    &res.Analysis,
		GeneratedAt: p.now(),
		Duration:    p.now().Sub(st.StartedAt),
		Tokens:      st.Tokens,
		Errors:      st.Errors,
	})

	res.Delivered = p.deliver(runCtx, res.Report, logger)
	outcome := metrics.OutcomeSuccess
	if !res.Delivered {
		outcome = metrics.OutcomeDeliveryFailed
	}
	metrics.ObserveRun(p.now().Sub(st.StartedAt), outcome)

	logger.Info("pipeline: run complete",
		"duration", p.now().Sub(st.StartedAt).Round(time.Millisecond),
		"total", len(res.All),
		"issues", len(res.Issues),
		"dampened", res.Dampened,
		"tokens", st.Tokens,
		"errors", len(st.Errors),
		"delivered", res.Delivered)
	return res, nil
}

// collect runs every collector concurrently under the run deadline carried
// by ctx. A collector that errors, panics or overruns the deadline becomes a
// failed Outcome; the others are unaffected.
func (p *Pipeline) collect(ctx context.Context, logger *slog.Logger) []aggregate.Outcome {
	outcomes := make([]aggregate.Outcome, len(p.collectors))
	var g errgroup.Group
	for i, c := range p.collectors {
		g.Go(func() error {
			outcomes[i] = runCollector(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			logger.Error("pipeline: collector failed", "collector", o.Collector, "err", o.Err)
			metrics.CollectorFailed(o.Collector)
		}
	}
	return outcomes
}

func runCollector(ctx context.Context, c collector.Collector) aggregate.Outcome {
	name := c.Name()
	done := make(chan aggregate.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- aggregate.Outcome{Collector: name, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		obs, err := c.Collect(ctx)
		done <- aggregate.Outcome{Collector: name, Observations: obs, Err: err}
	}()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		return aggregate.Outcome{Collector: name, Err: fmt.Errorf("%w: %w", ErrCollectorTimeout, ctx.Err())}
	}
}

func (p *Pipeline) dampen(all []types.Observation, logger *slog.Logger) (dampen.Result, error) {
	if p.openStore == nil {
		return dampen.Result{All: all, Issues: types.Issues(all)}, nil
	}
	res, err := dampen.New(p.openStore(), p.set, logger).Apply(all)
	if err != nil {
		return res, fmt.Errorf("pipeline: dampen: %w", err)
	}
	logger.Info("pipeline: dampening complete", "dampened", res.Dampened, "confirmed", res.Confirmed)
	return res, nil
}

func (p *Pipeline) analyze(ctx context.Context, res *Result, logger *slog.Logger) Update {
	out := p.analyzer.Analyze(ctx, res.Issues)
	res.Analysis = out.Payload
	tokens := out.Usage.Total()
	metrics.AddTokens(tokens)
	logger.Info("pipeline: analysis complete", "tokens", tokens)

	u := Update{Tokens: tokens}
	if out.Payload.Error != "" {
		u.Errors = []string{"analysis: " + out.Payload.Error}
	}
	return u
}

func (p *Pipeline) deliver(ctx context.Context, text string, logger *slog.Logger) bool {
	if p.dryRun {
		logger.Info("pipeline: dry run, report not delivered", "chars", len(text))
		return true
	}
	if p.sink.Send(ctx, text) {
		return true
	}
	logger.Error("pipeline: report delivery failed")
	metrics.DeliveryFailed()
	return false
}

func (p *Pipeline) notifyFailure(ctx context.Context, logger *slog.Logger, err error) {
	if p.dryRun {
		return
	}
	if !p.sink.Send(context.WithoutCancel(ctx), notify.ErrorNotification(err, "Monitoring cycle execution")) {
		logger.Error("pipeline: error notification failed")
	}
}
