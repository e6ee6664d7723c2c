package aggregate

import (
	"fmt"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// Outcome is what one collector produced in a run. A non-nil Err means the
// collector failed as a whole; any Observations it returned are still kept.
type Outcome struct {
	Collector    string
	Observations []types.Observation
	Err          error
}

// Result is the flattened view of a collection round.
type Result struct {
	All    []types.Observation
	Issues []types.Observation
	// Errors holds one message per collector that failed outright.
	Errors []string
}

// Aggregate concatenates outcomes in the order given, keeping each
// collector's internal order. Failed collectors are recorded in Errors and
// do not stop the merge.
func Aggregate(outcomes []Outcome) Result {
	var res Result
	for _, o := range outcomes {
		if o.Err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", o.Collector, o.Err))
		}
		res.All = append(res.All, o.Observations...)
	}
	res.Issues = types.Issues(res.All)
	return res
}
