// Package schedule triggers pipeline runs on a cron expression. A run that
// is still in flight when the next tick fires causes that tick to be skipped.
package schedule
