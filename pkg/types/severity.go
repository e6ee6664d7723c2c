package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the health tier assigned to an Observation.
type Severity string

const (
	SeverityGreen   Severity = "green"
	SeverityYellow  Severity = "yellow"
	SeverityRed     Severity = "red"
	SeverityUnknown Severity = "unknown"
)

// IsIssue reports whether s should surface as an issue. Anything that is not
// green counts, including unknown.
func (s Severity) IsIssue() bool {
	return s != SeverityGreen
}

// Rank orders green < yellow < red. Unknown has no place on that scale and
// ranks below green so that Worst never prefers it over a real reading.
func (s Severity) Rank() int {
	switch s {
	case SeverityGreen:
		return 1
	case SeverityYellow:
		return 2
	case SeverityRed:
		return 3
	default:
		return 0
	}
}

// Worst returns the more severe of a and b on the green/yellow/red scale.
// Unknown is returned only when both inputs are unknown.
func Worst(a, b Severity) Severity {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// Emoji returns the status marker used in rendered reports.
func (s Severity) Emoji() string {
	switch s {
	case SeverityGreen:
		return "🟢"
	case SeverityYellow:
		return "🟡"
	case SeverityRed:
		return "🔴"
	default:
		return "⚪"
	}
}

// Upper returns the tier name in upper case, e.g. "RED".
func (s Severity) Upper() string {
	return strings.ToUpper(string(s))
}

// ParseSeverity converts a case-insensitive tier name to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityGreen:
		return SeverityGreen, nil
	case SeverityYellow:
		return SeverityYellow, nil
	case SeverityRed:
		return SeverityRed, nil
	case SeverityUnknown:
		return SeverityUnknown, nil
	}
	return "", fmt.Errorf("types: unknown severity %q", s)
}

// UnmarshalJSON accepts any casing of the tier name.
func (s *Severity) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
