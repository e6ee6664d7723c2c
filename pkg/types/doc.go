// Package types defines the shared health data entities used across the agent:
// the Severity tier, the ordered Metrics list, and the Observation record that
// every collector produces and every pipeline stage consumes.
package types
