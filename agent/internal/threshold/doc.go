// Package threshold maps raw metric readings to health tiers.
//
// Evaluate applies a family's red/yellow cut-points with inclusive boundaries:
// a reading exactly on a cut-point belongs to the worse tier. A family with a
// missing cut-point evaluates to unknown.
//
// Registry lists the (collector, metric) pairs whose red breaches are eligible
// for daily dampening. Pairs absent from the table are binary checks and are
// never dampened.
package threshold
