// Package analysis produces the root-cause explanation attached to a report.
//
// Agent sends the current issues to a language model through an Invoker,
// subject to a daily USD budget tracked by Budget, and parses the model's JSON
// answer into a Payload. Every failure path (budget exhausted, invoke error,
// unparsable answer) yields a degraded but valid Payload instead of an error,
// so the pipeline always reaches the report stage.
package analysis
