package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/store"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// Incidents yields the current incident counters.
type Incidents interface {
	Snapshot() history.Snapshot
}

// IncidentsFunc adapts a function to Incidents.
type IncidentsFunc func() history.Snapshot

// Snapshot implements Incidents.
func (f IncidentsFunc) Snapshot() history.Snapshot { return f() }

// Options configures the handler. Runs is required.
type Options struct {
	Runs      *store.Runs
	Incidents Incidents

	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// NextRun reports the next scheduled run, when a scheduler is active.
	NextRun func() time.Time

	// AuthMode, AuthHeader and AuthKey configure APIKey for /api/v1.
	AuthMode   string
	AuthHeader string
	AuthKey    string
}

// Handler serves the status routes.
type Handler struct {
	runs      *store.Runs
	incidents Incidents
	nextRun   func() time.Time
	router    chi.Router
}

// New creates a Handler and registers all routes.
func New(o Options) http.Handler {
	h := &Handler{runs: o.Runs, incidents: o.Incidents, nextRun: o.NextRun}
	gatherer := o.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKey(o.AuthMode, o.AuthHeader, o.AuthKey))
		r.Get("/health", h.health)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/latest", h.latestRun)
		r.Get("/runs/{id}", h.getRun)
		r.Get("/incidents", h.listIncidents)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// health returns GET /api/v1/health: the headline of the latest run.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{State: types.SeverityUnknown, RunsRetained: h.runs.Count()}
	if h.nextRun != nil {
		resp.NextRunAt = rfc3339(h.nextRun())
	}

	last, ok := h.runs.Latest()
	if !ok {
		jsonResp(w, http.StatusOK, resp)
		return
	}
	resp.State = last.Overall
	resp.LastRunID = last.ID
	resp.LastRunAt = rfc3339(last.FinishedAt)
	resp.Total = last.Total
	resp.Red = last.Red
	resp.Yellow = last.Yellow
	resp.Unknown = last.Unknown
	resp.Dampened = last.Dampened
	resp.Errors = len(last.Errors)
	resp.Delivered = last.Delivered
	jsonResp(w, http.StatusOK, resp)
}

// listRuns returns GET /api/v1/runs, newest first.
func (h *Handler) listRuns(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.runs.List())
}

func (h *Handler) latestRun(w http.ResponseWriter, _ *http.Request) {
	r, ok := h.runs.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no runs yet")
		return
	}
	jsonResp(w, http.StatusOK, r)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	jsonResp(w, http.StatusOK, run)
}

// listIncidents returns GET /api/v1/incidents: today's counters.
func (h *Handler) listIncidents(w http.ResponseWriter, _ *http.Request) {
	if h.incidents == nil {
		jsonErr(w, http.StatusServiceUnavailable, "incident store not configured")
		return
	}
	snap := h.incidents.Snapshot()
	jsonResp(w, http.StatusOK, IncidentsResponse{
		Date:      snap.Date,
		Count:     len(snap.Incidents),
		Incidents: snap.Incidents,
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
