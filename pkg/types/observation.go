package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Metric is one collector-defined reading attached to an Observation.
// Value holds a scalar: a number, string, or bool.
type Metric struct {
	Key   string
	Value any
}

// Metrics is an ordered list of readings. Order is preserved from the
// collector so reports and prompts render keys in a stable sequence.
type Metrics []Metric

// Get returns the value stored under key.
func (m Metrics) Get(key string) (any, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Float returns the value under key as a float64. Non-numeric or absent
// values report false.
func (m Metrics) Float(key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Set returns m with key set to value, replacing an existing entry in place
// or appending a new one.
func (m Metrics) Set(key string, value any) Metrics {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, Metric{Key: key, Value: value})
}

// Clone returns an independent copy of m.
func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	out := make(Metrics, len(m))
	copy(out, m)
	return out
}

// MarshalJSON encodes m as a JSON object with keys in list order.
func (m Metrics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", kv.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into m, keeping the document's key
// order. Numbers decode as float64.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metrics: expected object, got %v", tok)
	}
	out := Metrics{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metrics: expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("metric %q: %w", key, err)
		}
		out = out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// Observation is one health reading for one target from one collector.
// Treat it as immutable once built; stages that change severity produce a
// copy through WithSeverity.
type Observation struct {
	Collector string    `json:"collector"`
	Target    string    `json:"target"`
	Severity  Severity  `json:"severity"`
	Metrics   Metrics   `json:"metrics"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewObservation builds an Observation stamped with the current time.
func NewObservation(collector, target string, sev Severity, metrics Metrics, message string) Observation {
	return Observation{
		Collector: collector,
		Target:    target,
		Severity:  sev,
		Metrics:   metrics,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Failed builds an Observation for a transport or connection level failure.
// The error text is carried in both Error and Message.
func Failed(collector, target string, sev Severity, metrics Metrics, message string, err error) Observation {
	o := NewObservation(collector, target, sev, metrics, message)
	if err != nil {
		o.Error = err.Error()
	} else {
		o.Error = message
	}
	return o
}

// HasError reports whether the observation records a binary failure.
func (o Observation) HasError() bool {
	return o.Error != ""
}

// WithSeverity returns a copy of o carrying sev and message.
func (o Observation) WithSeverity(sev Severity, message string) Observation {
	cp := o
	cp.Severity = sev
	cp.Message = message
	cp.Metrics = o.Metrics.Clone()
	return cp
}

// Issues returns the observations in all whose severity is not green,
// preserving order.
func Issues(all []Observation) []Observation {
	out := make([]Observation, 0, len(all))
	for _, o := range all {
		if o.Severity.IsIssue() {
			out = append(out, o)
		}
	}
	return out
}
