// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics
