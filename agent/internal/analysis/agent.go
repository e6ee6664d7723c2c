package analysis

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/llm"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// EstimatedTokens is the per-call token estimate checked against the budget.
const EstimatedTokens = 8000

// rawResponseLimit caps the unparsable answer kept for debugging.
const rawResponseLimit = 500

// Invoker sends a prompt to a model.
type Invoker interface {
	Invoke(ctx context.Context, system, prompt string) (llm.Reply, error)
}

// Agent is the model-backed Analyzer.
type Agent struct {
	invoker Invoker
	budget  *Budget
	logger  *slog.Logger
}

// NewAgent returns an Agent. budget may be nil to disable spend limiting.
func NewAgent(inv Invoker, budget *Budget, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{invoker: inv, budget: budget, logger: logger}
}

// Analyze implements Analyzer.
func (a *Agent) Analyze(ctx context.Context, issues []types.Observation) Result {
	if len(issues) == 0 {
		a.logger.Info("analysis: no issues to analyze")
		return Result{Payload: noIssues()}
	}

	if a.budget != nil && !a.budget.Allow(EstimatedTokens) {
		return Result{Payload: Payload{
			RootCause:       "Budget exceeded - analysis skipped",
			Severity:        "unknown",
			AffectedSystems: targets(issues),
			Recommendations: []Recommendation{{
				Priority:  "high",
				Action:    "Increase daily LLM budget or optimize prompt usage",
				Rationale: "Unable to perform analysis due to budget constraints",
			}},
			Error: ErrBudgetExceeded.Error(),
		}}
	}

	a.logger.Info("analysis: analyzing issues", "count", len(issues))
	reply, err := a.invoker.Invoke(ctx, SystemPrompt, BuildPrompt(issues))
	usage := Usage{InputTokens: reply.InputTokens, OutputTokens: reply.OutputTokens}
	if usage.Total() > 0 && a.budget != nil {
		a.budget.Record(usage)
	}
	if err != nil {
		a.logger.Error("analysis: invoke failed", "err", err)
		return Result{Usage: usage, Payload: Payload{
			RootCause:       "Analysis error: " + err.Error(),
			Severity:        "unknown",
			AffectedSystems: targets(issues),
			Recommendations: []Recommendation{{
				Priority:  "high",
				Action:    "Manual investigation required",
				Rationale: "Automated analysis failed",
			}},
			Error: err.Error(),
		}}
	}

	p, err := ParseResponse(reply.Text)
	if err != nil {
		a.logger.Error("analysis: parse response failed", "err", err)
		raw := truncate(reply.Text, rawResponseLimit)
		return Result{Usage: usage, Payload: Payload{
			RootCause:       "Unable to parse AI analysis response",
			Severity:        "unknown",
			AffectedSystems: []string{},
			Recommendations: []Recommendation{{
				Priority:  "high",
				Action:    "Manual investigation required",
				Rationale: "Automated analysis parsing failed",
			}},
			Error:       err.Error(),
			RawResponse: raw,
		}}
	}

	a.logger.Info("analysis: completed",
		"severity", p.Severity,
		"recommendations", len(p.Recommendations),
		"tokens", usage.Total())
	return Result{Payload: p, Usage: usage}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
