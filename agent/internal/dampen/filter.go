package dampen

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// FirstOccurrenceSuffix is appended to the message of a downgraded observation.
const FirstOccurrenceSuffix = " [first occurrence today]"

// ErrMembershipChanged reports that filtering moved an observation into or
// out of the issues set, which Apply must never do.
var ErrMembershipChanged = errors.New("dampen: issue membership changed")

// Counter is the incident counter store consulted by the filter.
type Counter interface {
	DailyCount(key string) int
	Increment(key string)
	RedMetricKeys(obs types.Observation, set threshold.Set) []string
}

// Result is the filtered observation set.
type Result struct {
	All    []types.Observation
	Issues []types.Observation
	// Dampened counts red observations downgraded to yellow.
	Dampened int
	// Confirmed counts red observations kept red after a repeat breach.
	Confirmed int
}

// Filter applies dampening with a fixed threshold set and counter store.
type Filter struct {
	set    threshold.Set
	store  Counter
	logger *slog.Logger
}

// New returns a Filter. A nil logger falls back to slog.Default().
func New(store Counter, set threshold.Set, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{set: set, store: store, logger: logger}
}

// Apply runs the filter over all, in order, and recomputes the issues set.
// The input slice is not modified.
func (f *Filter) Apply(all []types.Observation) (Result, error) {
	res := Result{All: make([]types.Observation, 0, len(all))}

	for _, obs := range all {
		if obs.Severity != types.SeverityRed {
			res.All = append(res.All, obs)
			continue
		}

		keys := f.store.RedMetricKeys(obs, f.set)
		if len(keys) == 0 {
			res.All = append(res.All, obs)
			continue
		}

		allFirst := true
		for _, k := range keys {
			if f.store.DailyCount(k) != 0 {
				allFirst = false
				break
			}
		}
		for _, k := range keys {
			f.store.Increment(k)
		}

		if allFirst {
			res.Dampened++
			f.logger.Info("dampen: first occurrence today, downgraded to yellow",
				"collector", obs.Collector, "target", obs.Target, "keys", keys)
			res.All = append(res.All, obs.WithSeverity(types.SeverityYellow, obs.Message+FirstOccurrenceSuffix))
			continue
		}

		res.Confirmed++
		f.logger.Debug("dampen: repeat breach, staying red",
			"collector", obs.Collector, "target", obs.Target, "keys", keys)
		res.All = append(res.All, obs)
	}

	res.Issues = types.Issues(res.All)

	for i := range all {
		if all[i].Severity.IsIssue() != res.All[i].Severity.IsIssue() {
			return res, fmt.Errorf("%w: %s/%s", ErrMembershipChanged, all[i].Collector, all[i].Target)
		}
	}
	return res, nil
}

// Apply is a convenience wrapper around New(store, set, nil).Apply(all).
func Apply(all []types.Observation, set threshold.Set, store Counter) (Result, error) {
	return New(store, set, nil).Apply(all)
}
