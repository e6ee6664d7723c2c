// Package pipeline drives one monitoring cycle: concurrent collection under
// an overall deadline, aggregation, daily dampening against the incident
// counter store, issue analysis, report composition and delivery.
//
// A run carries a State accumulator. Every stage hands back an Update that
// is merged additively, so errors recorded early survive later stages.
package pipeline
