// Package aggregate merges per-collector observation lists into one ordered
// sequence and derives the issues subset.
package aggregate
