package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// API probes HTTP health endpoints.
type API struct {
	endpoints []config.APIEndpoint
	set       threshold.Set
	client    *http.Client
	logger    *slog.Logger
}

// NewAPI returns the api collector.
func NewAPI(endpoints []config.APIEndpoint, set threshold.Set, logger *slog.Logger) *API {
	// Per-request deadlines come from each endpoint's timeout.
	return &API{endpoints: endpoints, set: set, client: &http.Client{}, logger: logger}
}

// Name implements Collector.
func (a *API) Name() string { return NameAPI }

// Collect implements Collector.
func (a *API) Collect(ctx context.Context) ([]types.Observation, error) {
	a.logger.Info("collector: checking api endpoints", "count", len(a.endpoints))
	return fanOut(ctx, a.endpoints, a.check), nil
}

func (a *API) check(ctx context.Context, ep config.APIEndpoint) types.Observation {
	urlMetric := types.Metrics{{Key: "url", Value: ep.URL}}

	reqCtx, cancel := context.WithTimeout(ctx, ep.Timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return types.Failed(NameAPI, ep.Name, types.SeverityUnknown, urlMetric,
			"Unexpected error: "+err.Error(), err)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return types.Failed(NameAPI, ep.Name, types.SeverityRed, urlMetric, "Request timeout", err)
		}
		return types.Failed(NameAPI, ep.Name, types.SeverityRed, urlMetric,
			"Request error: "+err.Error(), err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	metrics := types.Metrics{
		{Key: "status_code", Value: resp.StatusCode},
		{Key: "response_time_ms", Value: elapsed},
		{Key: "url", Value: ep.URL},
	}
	if resp.StatusCode != http.StatusOK {
		return types.NewObservation(NameAPI, ep.Name, types.SeverityRed, metrics,
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	sev := threshold.Evaluate(a.set, threshold.FamilyAPIResponse, elapsed, threshold.HigherIsWorse)
	var msg string
	switch sev {
	case types.SeverityRed:
		msg = fmt.Sprintf("Timeout (%.0fms)", elapsed)
	case types.SeverityYellow:
		msg = fmt.Sprintf("Slow (%.0fms)", elapsed)
	case types.SeverityGreen:
		msg = fmt.Sprintf("OK (%.0fms)", elapsed)
	default:
		msg = fmt.Sprintf("Responded in %.0fms, no response-time thresholds configured", elapsed)
	}
	return types.NewObservation(NameAPI, ep.Name, sev, metrics, msg)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
