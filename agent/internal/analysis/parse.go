package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

var errNoJSON = errors.New("no JSON object in response")

// ParseResponse extracts the analysis object from a model answer. A fenced
// ```json block wins; otherwise the widest {...} span is tried. Missing
// fields are filled with neutral defaults.
func ParseResponse(text string) (Payload, error) {
	var raw string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if m := bareJSON.FindString(text); m != "" {
		raw = m
	} else {
		return Payload{}, errNoJSON
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("decode analysis json: %w", err)
	}
	if p.RootCause == "" {
		p.RootCause = "Unable to determine root cause"
	}
	if p.Severity == "" {
		p.Severity = "unknown"
	}
	if p.AffectedSystems == nil {
		p.AffectedSystems = []string{}
	}
	if p.Recommendations == nil {
		p.Recommendations = []Recommendation{}
	}
	for i := range p.Recommendations {
		r := &p.Recommendations[i]
		if r.Priority == "" {
			r.Priority = "medium"
		}
		if r.Action == "" {
			r.Action = "No action specified"
		}
	}
	return p, nil
}
