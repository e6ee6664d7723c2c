package dampen

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

var now = time.Date(2026, 5, 2, 14, 0, 0, 0, time.Local)

func newStore(t *testing.T) *history.Store {
	t.Helper()
	return history.Open(filepath.Join(t.TempDir(), "history.json"),
		history.WithClock(func() time.Time { return now }),
		history.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func newFilter(st Counter) *Filter {
	return New(st, threshold.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func vps(target string, cpu, ram float64) types.Observation {
	return types.Observation{
		Collector: "vps",
		Target:    target,
		Severity:  types.SeverityRed,
		Metrics: types.Metrics{}.
			Set("cpu_usage_pct", cpu).
			Set("ram_usage_pct", ram).
			Set("disk_free_pct", 55.0),
		Message:   "CPU: 95.0%, RAM: 50.0%",
		Timestamp: now,
	}
}

// countingStore records increments without persisting anything.
type countingStore struct {
	counts     map[string]int
	increments int
}

func (c *countingStore) DailyCount(key string) int { return c.counts[key] }
func (c *countingStore) Increment(key string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[key]++
	c.increments++
}
func (c *countingStore) RedMetricKeys(obs types.Observation, set threshold.Set) []string {
	return history.RedMetricKeys(obs, set)
}

func TestApply_FirstOccurrenceDowngrades(t *testing.T) {
	st := newStore(t)
	res, err := newFilter(st).Apply([]types.Observation{vps("X", 95, 50)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got := res.All[0]
	if got.Severity != types.SeverityYellow {
		t.Errorf("severity = %s, want yellow", got.Severity)
	}
	if !strings.HasSuffix(got.Message, "[first occurrence today]") {
		t.Errorf("message = %q", got.Message)
	}
	if c := st.DailyCount("vps:X:cpu_usage_pct"); c != 1 {
		t.Errorf("cpu count = %d, want 1", c)
	}
	if c := st.DailyCount("vps:X:ram_usage_pct"); c != 0 {
		t.Errorf("ram count = %d, want 0", c)
	}
	if res.Dampened != 1 {
		t.Errorf("Dampened = %d", res.Dampened)
	}
	if len(res.Issues) != 1 || res.Issues[0].Severity != types.SeverityYellow {
		t.Errorf("issues = %+v", res.Issues)
	}
}

func TestApply_SecondOccurrenceStaysRed(t *testing.T) {
	st := newStore(t)
	f := newFilter(st)
	in := vps("X", 95, 50)

	if _, err := f.Apply([]types.Observation{in}); err != nil {
		t.Fatal(err)
	}
	res, err := f.Apply([]types.Observation{in})
	if err != nil {
		t.Fatal(err)
	}

	got := res.All[0]
	if got.Severity != types.SeverityRed {
		t.Errorf("severity = %s, want red", got.Severity)
	}
	if got.Message != in.Message {
		t.Errorf("message changed: %q", got.Message)
	}
	if c := st.DailyCount("vps:X:cpu_usage_pct"); c != 2 {
		t.Errorf("count = %d, want 2", c)
	}
	if res.Confirmed != 1 {
		t.Errorf("Confirmed = %d", res.Confirmed)
	}
}

func TestApply_PartialRecurrenceStaysRed(t *testing.T) {
	st := newStore(t)
	st.Increment("vps:X:ram_usage_pct")

	res, err := newFilter(st).Apply([]types.Observation{vps("X", 95, 93)})
	if err != nil {
		t.Fatal(err)
	}
	if res.All[0].Severity != types.SeverityRed {
		t.Errorf("severity = %s, want red", res.All[0].Severity)
	}
	if c := st.DailyCount("vps:X:cpu_usage_pct"); c != 1 {
		t.Errorf("cpu count = %d, want 1", c)
	}
	if c := st.DailyCount("vps:X:ram_usage_pct"); c != 2 {
		t.Errorf("ram count = %d, want 2", c)
	}
}

func TestApply_MultiMetricFirstOccurrenceDowngrades(t *testing.T) {
	st := newStore(t)
	res, err := newFilter(st).Apply([]types.Observation{vps("X", 95, 93)})
	if err != nil {
		t.Fatal(err)
	}
	if res.All[0].Severity != types.SeverityYellow {
		t.Errorf("severity = %s, want yellow", res.All[0].Severity)
	}
	for _, k := range []string{"vps:X:cpu_usage_pct", "vps:X:ram_usage_pct"} {
		if c := st.DailyCount(k); c != 1 {
			t.Errorf("%s = %d, want 1", k, c)
		}
	}
}

func TestApply_BinaryFailureBypass(t *testing.T) {
	st := &countingStore{}
	in := vps("X", 99, 99)
	in.Error = "connection refused"

	if keys := st.RedMetricKeys(in, threshold.Default()); len(keys) != 0 {
		t.Errorf("RedMetricKeys = %v, want none", keys)
	}
	res, err := newFilter(st).Apply([]types.Observation{in})
	if err != nil {
		t.Fatal(err)
	}
	if res.All[0].Severity != types.SeverityRed || res.All[0].Message != in.Message {
		t.Errorf("observation changed: %+v", res.All[0])
	}
	if st.increments != 0 {
		t.Errorf("increments = %d, want 0", st.increments)
	}
}

func TestApply_NonDampenableCollectorBypass(t *testing.T) {
	st := &countingStore{}
	in := types.Observation{
		Collector: "docker",
		Target:    "web/nginx",
		Severity:  types.SeverityRed,
		Metrics:   types.Metrics{}.Set("status", "exited (1) 2 hours ago"),
		Message:   "Container exited with error (exit 1)",
	}
	res, err := newFilter(st).Apply([]types.Observation{in})
	if err != nil {
		t.Fatal(err)
	}
	if res.All[0].Severity != types.SeverityRed || res.All[0].Message != in.Message {
		t.Errorf("observation changed: %+v", res.All[0])
	}
	if st.increments != 0 {
		t.Errorf("increments = %d, want 0", st.increments)
	}
}

func TestApply_NonRedPassThrough(t *testing.T) {
	st := &countingStore{}
	in := []types.Observation{
		{Collector: "vps", Target: "a", Severity: types.SeverityYellow, Metrics: types.Metrics{}.Set("cpu_usage_pct", 95.0)},
		{Collector: "vps", Target: "b", Severity: types.SeverityUnknown, Metrics: types.Metrics{}.Set("cpu_usage_pct", 95.0)},
		{Collector: "vps", Target: "c", Severity: types.SeverityGreen},
	}
	res, err := newFilter(st).Apply(in)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if res.All[i].Severity != in[i].Severity {
			t.Errorf("%s: severity %s, want %s", in[i].Target, res.All[i].Severity, in[i].Severity)
		}
	}
	if st.increments != 0 {
		t.Errorf("increments = %d, want 0", st.increments)
	}
}

func TestApply_RedWithoutBreachedMetricStaysRed(t *testing.T) {
	// Red overall but no individual metric at red: nothing to dampen.
	st := &countingStore{}
	in := vps("X", 50, 50)
	res, err := newFilter(st).Apply([]types.Observation{in})
	if err != nil {
		t.Fatal(err)
	}
	if res.All[0].Severity != types.SeverityRed {
		t.Errorf("severity = %s", res.All[0].Severity)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := []types.Observation{vps("X", 95, 50)}
	if _, err := Apply(in, threshold.Default(), &countingStore{}); err != nil {
		t.Fatal(err)
	}
	if in[0].Severity != types.SeverityRed || strings.Contains(in[0].Message, "first occurrence") {
		t.Errorf("input mutated: %+v", in[0])
	}
}

func TestApply_IssueMembershipPreserved(t *testing.T) {
	st := newStore(t)
	st.Increment("vps:B:cpu_usage_pct")
	in := []types.Observation{
		vps("A", 95, 50),
		vps("B", 95, 50),
		{Collector: "api", Target: "shop", Severity: types.SeverityGreen},
		{Collector: "s3", Target: "logs", Severity: types.SeverityUnknown, Error: "missing credentials"},
		{Collector: "api", Target: "auth", Severity: types.SeverityRed,
			Metrics: types.Metrics{}.Set("response_time_ms", 7000.0)},
	}
	res, err := newFilter(st).Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(res.All) != len(in) {
		t.Fatalf("all: got %d, want %d", len(res.All), len(in))
	}
	members := map[string]bool{}
	for _, o := range res.Issues {
		members[o.Target] = true
	}
	for i, o := range res.All {
		if o.Severity.IsIssue() != members[o.Target] {
			t.Errorf("%s: issue=%v member=%v", o.Target, o.Severity.IsIssue(), members[o.Target])
		}
		if in[i].Severity.IsIssue() != o.Severity.IsIssue() {
			t.Errorf("%s: membership changed by filtering", o.Target)
		}
	}
	if res.All[0].Severity != types.SeverityYellow || res.All[1].Severity != types.SeverityRed {
		t.Errorf("A=%s B=%s", res.All[0].Severity, res.All[1].Severity)
	}
	if res.All[4].Severity != types.SeverityYellow {
		t.Errorf("api first slow response should be dampened, got %s", res.All[4].Severity)
	}
}
