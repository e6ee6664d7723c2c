package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/api"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/store"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// --- test helpers -----------------------------------------------------------

func newRuns(runs ...store.Run) *store.Runs {
	st := store.New(10, 0)
	for _, r := range runs {
		st.Add(r)
	}
	return st
}

func newHandler(runs *store.Runs) http.Handler {
	return api.New(api.Options{
		Runs: runs,
		Incidents: api.IncidentsFunc(func() history.Snapshot {
			return history.Snapshot{Date: "2026-03-10", Incidents: []history.Entry{
				{Key: "vps:web-1:cpu_usage_pct", Record: history.Record{Count: 2}},
			}}
		}),
		Gatherer: prometheus.NewRegistry(),
	})
}

func get(t *testing.T, h http.Handler, path string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- tests ------------------------------------------------------------------

func TestHealth_NoRuns(t *testing.T) {
	rr := get(t, newHandler(newRuns()), "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != types.SeverityUnknown || resp.LastRunID != "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealth_LatestRun(t *testing.T) {
	runs := newRuns(
		store.Run{ID: "r1", Overall: types.SeverityGreen, Total: 4},
		store.Run{ID: "r2", Overall: types.SeverityRed, Total: 5, Red: 1, Yellow: 2, Dampened: 1, Errors: []string{"docker: x"}, Delivered: true},
	)
	rr := get(t, newHandler(runs), "/api/v1/health")
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.State != types.SeverityRed || resp.LastRunID != "r2" {
		t.Errorf("state/run: got %s/%s", resp.State, resp.LastRunID)
	}
	if resp.Red != 1 || resp.Yellow != 2 || resp.Dampened != 1 || resp.Errors != 1 || !resp.Delivered {
		t.Errorf("counts = %+v", resp)
	}
	if resp.RunsRetained != 2 {
		t.Errorf("runs_retained: got %d, want 2", resp.RunsRetained)
	}
	if _, err := time.Parse(time.RFC3339, resp.LastRunAt); err != nil {
		t.Errorf("last_run_at %q: %v", resp.LastRunAt, err)
	}
}

func TestRuns_ListLatestAndGet(t *testing.T) {
	h := newHandler(newRuns(store.Run{ID: "a"}, store.Run{ID: "b"}))

	var list []store.Run
	decode(t, get(t, h, "/api/v1/runs"), &list)
	if len(list) != 2 || list[0].ID != "b" {
		t.Errorf("list = %+v", list)
	}

	var latest store.Run
	decode(t, get(t, h, "/api/v1/runs/latest"), &latest)
	if latest.ID != "b" {
		t.Errorf("latest = %q", latest.ID)
	}

	var one store.Run
	decode(t, get(t, h, "/api/v1/runs/a"), &one)
	if one.ID != "a" {
		t.Errorf("get = %q", one.ID)
	}

	if rr := get(t, h, "/api/v1/runs/zzz"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown run: got %d, want 404", rr.Code)
	}
}

func TestRuns_LatestEmpty(t *testing.T) {
	if rr := get(t, newHandler(newRuns()), "/api/v1/runs/latest"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestIncidents(t *testing.T) {
	var resp api.IncidentsResponse
	decode(t, get(t, newHandler(newRuns()), "/api/v1/incidents"), &resp)
	if resp.Date != "2026-03-10" || resp.Count != 1 || resp.Incidents[0].Count != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestIncidents_NotConfigured(t *testing.T) {
	h := api.New(api.Options{Runs: newRuns()})
	if rr := get(t, h, "/api/v1/incidents"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newHandler(newRuns())
	if rr := get(t, h, "/healthz"); rr.Code != http.StatusOK {
		t.Errorf("/healthz: got %d", rr.Code)
	}
	if rr := get(t, h, "/metrics"); rr.Code != http.StatusOK {
		t.Errorf("/metrics: got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler(newRuns()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

func TestAPIKey(t *testing.T) {
	h := api.New(api.Options{
		Runs:       newRuns(),
		AuthMode:   "apikey",
		AuthHeader: "X-API-Key",
		AuthKey:    "s3cret",
	})

	tests := []struct {
		name string
		hdr  []string
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"correct", []string{"X-API-Key", "s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := get(t, h, "/api/v1/health", tt.hdr...); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}

	// Liveness stays open.
	if rr := get(t, h, "/healthz"); rr.Code != http.StatusOK {
		t.Errorf("/healthz behind auth: got %d", rr.Code)
	}
}

func TestAPIKey_PassThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	for _, tc := range []struct{ mode, key string }{{"none", "k"}, {"apikey", ""}} {
		rr := httptest.NewRecorder()
		api.APIKey(tc.mode, "X-API-Key", tc.key)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusTeapot {
			t.Errorf("mode=%q key=%q: got %d, want pass-through", tc.mode, tc.key, rr.Code)
		}
	}
}

func TestNotFound_JSON(t *testing.T) {
	rr := get(t, newHandler(newRuns()), "/nope")
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "not found") {
		t.Errorf("got %d %s", rr.Code, rr.Body.String())
	}
}
