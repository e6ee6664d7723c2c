package threshold

import "github.com/tailorcast/monitoring-agents-it/pkg/types"

// Family names one group of cut-points in a Set.
type Family string

const (
	FamilyCPU         Family = "cpu"
	FamilyRAM         Family = "ram"
	FamilyDiskFree    Family = "disk_free"
	FamilyAPIResponse Family = "api_response"
	FamilyCertDays    Family = "cert_days"
)

// Direction says which way a reading gets worse.
type Direction int

const (
	HigherIsWorse Direction = iota
	LowerIsWorse
)

func (d Direction) String() string {
	if d == LowerIsWorse {
		return "lower_is_worse"
	}
	return "higher_is_worse"
}

// Set holds the configured cut-points. A nil field means the cut-point is
// not configured.
type Set struct {
	CPURed         *float64 `yaml:"cpu_red" json:"cpu_red,omitempty"`
	CPUYellow      *float64 `yaml:"cpu_yellow" json:"cpu_yellow,omitempty"`
	RAMRed         *float64 `yaml:"ram_red" json:"ram_red,omitempty"`
	RAMYellow      *float64 `yaml:"ram_yellow" json:"ram_yellow,omitempty"`
	DiskFreeRed    *float64 `yaml:"disk_free_red" json:"disk_free_red,omitempty"`
	DiskFreeYellow *float64 `yaml:"disk_free_yellow" json:"disk_free_yellow,omitempty"`
	APITimeoutMs   *float64 `yaml:"api_timeout_ms" json:"api_timeout_ms,omitempty"`
	APISlowMs      *float64 `yaml:"api_slow_ms" json:"api_slow_ms,omitempty"`
	CertDaysRed    *float64 `yaml:"cert_days_red" json:"cert_days_red,omitempty"`
	CertDaysYellow *float64 `yaml:"cert_days_yellow" json:"cert_days_yellow,omitempty"`
}

// Default returns the stock cut-points.
func Default() Set {
	return Set{
		CPURed:         Value(90),
		CPUYellow:      Value(70),
		RAMRed:         Value(90),
		RAMYellow:      Value(70),
		DiskFreeRed:    Value(10),
		DiskFreeYellow: Value(20),
		APITimeoutMs:   Value(5000),
		APISlowMs:      Value(2000),
		CertDaysRed:    Value(7),
		CertDaysYellow: Value(30),
	}
}

// Value returns a pointer to v, for building a Set literal.
func Value(v float64) *float64 { return &v }

// Red returns the red cut-point for f.
func (s Set) Red(f Family) (float64, bool) {
	return deref(s.pair(f)[0])
}

// Yellow returns the yellow cut-point for f.
func (s Set) Yellow(f Family) (float64, bool) {
	return deref(s.pair(f)[1])
}

func (s Set) pair(f Family) [2]*float64 {
	switch f {
	case FamilyCPU:
		return [2]*float64{s.CPURed, s.CPUYellow}
	case FamilyRAM:
		return [2]*float64{s.RAMRed, s.RAMYellow}
	case FamilyDiskFree:
		return [2]*float64{s.DiskFreeRed, s.DiskFreeYellow}
	case FamilyAPIResponse:
		return [2]*float64{s.APITimeoutMs, s.APISlowMs}
	case FamilyCertDays:
		return [2]*float64{s.CertDaysRed, s.CertDaysYellow}
	}
	return [2]*float64{}
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Evaluate classifies value against the cut-points of family f.
// Both cut-points must be configured; otherwise the result is unknown.
func Evaluate(s Set, f Family, value float64, dir Direction) types.Severity {
	red, okRed := s.Red(f)
	yellow, okYellow := s.Yellow(f)
	if !okRed || !okYellow {
		return types.SeverityUnknown
	}
	switch {
	case Breached(value, red, dir):
		return types.SeverityRed
	case Breached(value, yellow, dir):
		return types.SeverityYellow
	default:
		return types.SeverityGreen
	}
}

// Breached reports whether value has reached limit in the direction dir.
// The boundary is inclusive.
func Breached(value, limit float64, dir Direction) bool {
	if dir == LowerIsWorse {
		return value <= limit
	}
	return value >= limit
}
