// Package lock guards the state directory with a PID file so only one agent
// process runs the pipeline against it.
package lock
