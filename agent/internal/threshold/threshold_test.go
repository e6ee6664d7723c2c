package threshold

import (
	"testing"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

func TestEvaluate_HigherIsWorseBoundaries(t *testing.T) {
	s := Set{CPURed: Value(90), CPUYellow: Value(70)}
	tests := []struct {
		value float64
		want  types.Severity
	}{
		{95, types.SeverityRed},
		{90, types.SeverityRed},
		{89.999, types.SeverityYellow},
		{70, types.SeverityYellow},
		{69.999, types.SeverityGreen},
		{0, types.SeverityGreen},
	}
	for _, tt := range tests {
		if got := Evaluate(s, FamilyCPU, tt.value, HigherIsWorse); got != tt.want {
			t.Errorf("Evaluate(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestEvaluate_LowerIsWorseBoundaries(t *testing.T) {
	s := Set{DiskFreeRed: Value(10), DiskFreeYellow: Value(20)}
	tests := []struct {
		value float64
		want  types.Severity
	}{
		{5, types.SeverityRed},
		{10, types.SeverityRed},
		{10.001, types.SeverityYellow},
		{20, types.SeverityYellow},
		{20.001, types.SeverityGreen},
	}
	for _, tt := range tests {
		if got := Evaluate(s, FamilyDiskFree, tt.value, LowerIsWorse); got != tt.want {
			t.Errorf("Evaluate(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestEvaluate_MissingCutPointIsUnknown(t *testing.T) {
	tests := []struct {
		name string
		set  Set
	}{
		{"no red", Set{CPUYellow: Value(70)}},
		{"no yellow", Set{CPURed: Value(90)}},
		{"empty", Set{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.set, FamilyCPU, 99, HigherIsWorse); got != types.SeverityUnknown {
				t.Errorf("got %s, want unknown", got)
			}
		})
	}
}

func TestEvaluate_APIUsesTimeoutAndSlow(t *testing.T) {
	s := Default()
	if got := Evaluate(s, FamilyAPIResponse, 5000, HigherIsWorse); got != types.SeverityRed {
		t.Errorf("5000ms: got %s", got)
	}
	if got := Evaluate(s, FamilyAPIResponse, 2000, HigherIsWorse); got != types.SeverityYellow {
		t.Errorf("2000ms: got %s", got)
	}
	if got := Evaluate(s, FamilyAPIResponse, 150, HigherIsWorse); got != types.SeverityGreen {
		t.Errorf("150ms: got %s", got)
	}
}

func TestEvaluate_UnknownFamily(t *testing.T) {
	if got := Evaluate(Default(), Family("gpu"), 50, HigherIsWorse); got != types.SeverityUnknown {
		t.Errorf("got %s, want unknown", got)
	}
}

func TestForCollector(t *testing.T) {
	if got := len(ForCollector("vps")); got != 3 {
		t.Errorf("vps: got %d entries, want 3", got)
	}
	if got := len(ForCollector("ec2")); got != 2 {
		t.Errorf("ec2: got %d entries, want 2", got)
	}
	if got := ForCollector("docker"); len(got) != 0 {
		t.Errorf("docker: got %v, want none", got)
	}
}
