// Package history is the incident counter store behind alert dampening.
//
// A Store counts, per incident key ("collector:target:metric"), how many times
// a red threshold breach was confirmed today. State is a single JSON document
// ({date, incidents}) loaded once in Open and rewritten in full, atomically,
// on every Increment. When the stored date is not today the counters start
// empty. Read and write failures are logged and never returned: a store that
// cannot persist keeps counting in memory for the rest of the run.
//
// A Store is not meant to be shared between processes. Callers serialize
// access within a run; the mutex only protects status readers.
package history
