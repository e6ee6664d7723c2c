package api

import (
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State        types.Severity `json:"state"`
	LastRunID    string         `json:"last_run_id,omitempty"`
	LastRunAt    string         `json:"last_run_at,omitempty"` // RFC3339
	Total        int            `json:"total"`
	Red          int            `json:"red"`
	Yellow       int            `json:"yellow"`
	Unknown      int            `json:"unknown"`
	Dampened     int            `json:"dampened"`
	Errors       int            `json:"errors"`
	Delivered    bool           `json:"delivered"`
	RunsRetained int            `json:"runs_retained"`
	NextRunAt    string         `json:"next_run_at,omitempty"` // RFC3339
}

// IncidentsResponse is the payload for GET /api/v1/incidents.
type IncidentsResponse struct {
	Date      string          `json:"date"`
	Count     int             `json:"count"`
	Incidents []history.Entry `json:"incidents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
