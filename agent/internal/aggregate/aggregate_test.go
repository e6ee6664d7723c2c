package aggregate

import (
	"errors"
	"testing"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

func obs(collector, target string, sev types.Severity) types.Observation {
	return types.Observation{Collector: collector, Target: target, Severity: sev}
}

func TestAggregate_OrderAndIssues(t *testing.T) {
	res := Aggregate([]Outcome{
		{Collector: "vps", Observations: []types.Observation{
			obs("vps", "web-1", types.SeverityGreen),
			obs("vps", "web-2", types.SeverityRed),
		}},
		{Collector: "api", Observations: []types.Observation{
			obs("api", "shop", types.SeverityYellow),
			obs("api", "auth", types.SeverityUnknown),
		}},
	})

	wantOrder := []string{"web-1", "web-2", "shop", "auth"}
	if len(res.All) != len(wantOrder) {
		t.Fatalf("all: got %d, want %d", len(res.All), len(wantOrder))
	}
	for i, want := range wantOrder {
		if res.All[i].Target != want {
			t.Errorf("all[%d] = %s, want %s", i, res.All[i].Target, want)
		}
	}
	if len(res.Issues) != 3 {
		t.Errorf("issues: got %d, want 3", len(res.Issues))
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors: got %v", res.Errors)
	}
}

func TestAggregate_PartialFailure(t *testing.T) {
	res := Aggregate([]Outcome{
		{Collector: "vps", Observations: []types.Observation{
			obs("vps", "web-1", types.SeverityGreen),
			obs("vps", "web-2", types.SeverityRed),
		}},
		{Collector: "database", Err: errors.New("pool exhausted")},
		{Collector: "s3", Observations: []types.Observation{
			obs("s3", "backups", types.SeverityGreen),
		}},
	})

	if len(res.All) != 3 {
		t.Fatalf("all: got %d, want 3", len(res.All))
	}
	if res.All[2].Collector != "s3" {
		t.Errorf("all[2] collector = %s, want s3", res.All[2].Collector)
	}
	if len(res.Issues) != 1 || res.Issues[0].Target != "web-2" {
		t.Errorf("issues = %+v", res.Issues)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "database: pool exhausted" {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestAggregate_IssueMembership(t *testing.T) {
	res := Aggregate([]Outcome{{Collector: "mixed", Observations: []types.Observation{
		obs("mixed", "a", types.SeverityGreen),
		obs("mixed", "b", types.SeverityYellow),
		obs("mixed", "c", types.SeverityRed),
		obs("mixed", "d", types.SeverityUnknown),
		obs("mixed", "e", types.SeverityGreen),
	}}})

	inIssues := make(map[string]bool)
	for _, o := range res.Issues {
		inIssues[o.Target] = true
	}
	for _, o := range res.All {
		if o.Severity.IsIssue() != inIssues[o.Target] {
			t.Errorf("%s (%s): membership %v", o.Target, o.Severity, inIssues[o.Target])
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil)
	if len(res.All) != 0 || len(res.Issues) != 0 || len(res.Errors) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}
