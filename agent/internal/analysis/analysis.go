package analysis

import (
	"context"
	"errors"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// Recommendation is one remediation step.
type Recommendation struct {
	Priority  string `json:"priority"`
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
}

// Payload is the structured explanation rendered in the report.
type Payload struct {
	RootCause       string           `json:"root_cause"`
	Severity        string           `json:"severity"`
	AffectedSystems []string         `json:"affected_systems"`
	Recommendations []Recommendation `json:"recommendations"`

	// Error is set when analysis failed and the payload is a placeholder.
	Error string `json:"error,omitempty"`
	// RawResponse holds the start of an answer that could not be parsed.
	RawResponse string `json:"raw_response,omitempty"`
}

// Usage is the token consumption of one analysis.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Result is what Analyze returns.
type Result struct {
	Payload Payload
	Usage   Usage
}

// Analyzer explains a set of issues. Implementations never fail: problems
// are reported inside the returned Payload.
type Analyzer interface {
	Analyze(ctx context.Context, issues []types.Observation) Result
}

// Noop is the Analyzer used when no model is configured.
type Noop struct{}

// Analyze returns a fixed "disabled" payload.
func (Noop) Analyze(_ context.Context, issues []types.Observation) Result {
	if len(issues) == 0 {
		return Result{Payload: noIssues()}
	}
	return Result{Payload: Payload{
		RootCause:       "AI analysis disabled",
		Severity:        "unknown",
		AffectedSystems: targets(issues),
	}}
}

func noIssues() Payload {
	return Payload{
		RootCause:       "No issues detected",
		Severity:        "none",
		AffectedSystems: []string{},
		Recommendations: []Recommendation{},
	}
}

func targets(issues []types.Observation) []string {
	out := make([]string, 0, len(issues))
	for _, o := range issues {
		out = append(out, o.Target)
	}
	return out
}

// ErrBudgetExceeded marks a payload produced because the daily budget ran out.
var ErrBudgetExceeded = errors.New("analysis: daily budget exceeded")
