package collector

import (
	"context"
	"testing"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

func TestClassifyContainer(t *testing.T) {
	tests := []struct {
		status string
		want   types.Severity
		msg    string
	}{
		{"Up 3 hours", types.SeverityGreen, "Container running"},
		{"Up 2 minutes (healthy)", types.SeverityGreen, "Container running"},
		{"Up 5 minutes (unhealthy)", types.SeverityRed, "Container unhealthy"},
		{"Restarting (1) 4 seconds ago", types.SeverityYellow, "Container restarting"},
		{"Exited (0) 2 days ago", types.SeverityYellow, "Container stopped cleanly (exit 0)"},
		{"Exited (137) 1 hour ago", types.SeverityRed, "Container exited with error (exit 137)"},
		{"Created", types.SeverityYellow, "Container created but not started"},
		{"Dead", types.SeverityRed, "Container in error state"},
		{"Paused", types.SeverityUnknown, "Unknown status: paused"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			sev, msg := classifyContainer(tt.status)
			if sev != tt.want || msg != tt.msg {
				t.Errorf("classifyContainer(%q) = %v %q, want %v %q", tt.status, sev, msg, tt.want, tt.msg)
			}
		})
	}
}

func TestParseDockerPS_SkipsBadLines(t *testing.T) {
	out := `{"ID":"abc","Names":"web","Image":"nginx","Status":"Up 1 hour"}
not json
{"ID":"def","Image":"redis","Status":"Exited (1) 3 minutes ago"}
`
	cs := parseDockerPS(out, testLogger())
	if len(cs) != 2 {
		t.Fatalf("containers = %d, want 2", len(cs))
	}
	if cs[1].Names != "unknown" {
		t.Errorf("missing name = %q, want unknown", cs[1].Names)
	}
}

func TestDocker_Collect(t *testing.T) {
	runner := &fakeRunner{out: map[string]string{
		dockerPS: `{"ID":"0123456789abcdef","Names":"api","Image":"app:1.2","Status":"Up 4 days"}
{"ID":"fedcba9876543210","Names":"worker","Image":"app:1.2","Status":"Exited (2) 1 minute ago"}`,
	}}
	d := NewDocker([]config.VPSServer{{Name: "web-1", Host: "10.0.0.5"}}, runner, testLogger())

	obs, err := d.Collect(context.Background())
	if err != nil || len(obs) != 2 {
		t.Fatalf("Collect = %d obs, err %v", len(obs), err)
	}
	if obs[0].Target != "web-1/api" || obs[0].Severity != types.SeverityGreen {
		t.Errorf("obs[0] = %s %v", obs[0].Target, obs[0].Severity)
	}
	if id, _ := obs[0].Metrics.Get("container_id"); id != "0123456789ab" {
		t.Errorf("container_id = %v", id)
	}
	if obs[1].Target != "web-1/worker" || obs[1].Severity != types.SeverityRed {
		t.Errorf("obs[1] = %s %v", obs[1].Target, obs[1].Severity)
	}
}

func TestDocker_NoContainers(t *testing.T) {
	runner := &fakeRunner{out: map[string]string{dockerPS: "\n"}}
	d := NewDocker([]config.VPSServer{{Name: "web-1", Host: "10.0.0.5"}}, runner, testLogger())

	obs, _ := d.Collect(context.Background())
	if len(obs) != 1 {
		t.Fatalf("obs = %d, want 1", len(obs))
	}
	o := obs[0]
	if o.Target != "web-1/no-containers" || o.Severity != types.SeverityYellow || o.Message != "No containers found" {
		t.Errorf("obs = %+v", o)
	}
}
