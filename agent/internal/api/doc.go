// Package api serves the agent's read-only status endpoints: recent runs,
// today's incident counters, the Prometheus scrape target and a liveness
// probe.
//
// Routes:
//
//	GET /healthz
//	GET /metrics
//	GET /api/v1/health
//	GET /api/v1/runs
//	GET /api/v1/runs/latest
//	GET /api/v1/runs/{id}
//	GET /api/v1/incidents
package api
