// Package dampen implements first-occurrence alert dampening.
//
// For each red observation the filter asks the counter store which of its
// dampenable metrics are independently red. If every one of those keys is
// unseen today the observation is downgraded to yellow with a
// "[first occurrence today]" marker; once any key has fired earlier in the
// day the observation stays red. All keys are counted on every confirmed
// breach, whether or not the observation was downgraded.
//
// Observations with an error, non-red observations, and collectors without
// dampenable metrics pass through untouched. Dampening only relabels: the set
// of issues before and after Apply is identical.
package dampen
