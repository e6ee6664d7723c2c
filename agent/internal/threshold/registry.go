package threshold

// Dampenable describes one metric whose red breach is eligible for
// first-occurrence dampening.
type Dampenable struct {
	Collector string
	Metric    string
	Family    Family
	Direction Direction
}

// Registry is the fixed table of dampenable metrics, in evaluation order.
var Registry = []Dampenable{
	{Collector: "vps", Metric: "cpu_usage_pct", Family: FamilyCPU, Direction: HigherIsWorse},
	{Collector: "vps", Metric: "ram_usage_pct", Family: FamilyRAM, Direction: HigherIsWorse},
	{Collector: "vps", Metric: "disk_free_pct", Family: FamilyDiskFree, Direction: LowerIsWorse},
	{Collector: "ec2", Metric: "cpu_usage_pct", Family: FamilyCPU, Direction: HigherIsWorse},
	{Collector: "ec2", Metric: "disk_free_pct", Family: FamilyDiskFree, Direction: LowerIsWorse},
	{Collector: "api", Metric: "response_time_ms", Family: FamilyAPIResponse, Direction: HigherIsWorse},
}

// ForCollector returns the registry entries for collector, in table order.
func ForCollector(collector string) []Dampenable {
	var out []Dampenable
	for _, d := range Registry {
		if d.Collector == collector {
			out = append(out, d)
		}
	}
	return out
}
