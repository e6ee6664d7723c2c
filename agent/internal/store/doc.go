// Package store keeps the summaries of recent pipeline runs in memory for the
// status API. It is bounded by a run count and evicts entries older than the
// configured retention.
package store
