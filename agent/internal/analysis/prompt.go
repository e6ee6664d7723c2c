package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// maxPromptMetrics caps the metrics listed per issue.
const maxPromptMetrics = 5

// SystemPrompt frames the model as an SRE producing structured JSON.
const SystemPrompt = `You are an expert Site Reliability Engineer and infrastructure analyst.
Your expertise includes root cause analysis and issue correlation, cloud infrastructure (AWS, VPS servers),
Docker containers, PostgreSQL reliability, API monitoring and system resource tuning.

Be practical and concise, reference specific metrics and symptoms, and answer in the requested JSON format.
Correlate related issues to find systemic problems rather than treating each one in isolation.`

const instructions = `
---
Analyze these infrastructure issues and provide:
1. Root cause: the underlying cause, correlating related issues
2. Severity: overall impact (critical/high/medium/low)
3. Affected systems: impacted system names
4. Recommendations: specific remediation steps with priorities

Respond in JSON:
` + "```json" + `
{
  "root_cause": "Brief explanation of the underlying cause",
  "severity": "critical|high|medium|low",
  "affected_systems": ["system1", "system2"],
  "recommendations": [
    {"priority": "immediate|high|medium|low", "action": "Specific remediation step", "rationale": "Why this helps"}
  ]
}
` + "```" + `
Be concise and practical.
`

// BuildPrompt renders issues grouped by collector, collectors sorted by name.
func BuildPrompt(issues []types.Observation) string {
	groups := make(map[string][]types.Observation)
	for _, o := range issues {
		groups[o.Collector] = append(groups[o.Collector], o)
	}
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Infrastructure Issues Detected\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "## %s Issues\n\n", strings.ToUpper(name))
		for _, o := range groups[name] {
			fmt.Fprintf(&b, "%s **%s**\n", o.Severity.Emoji(), o.Target)
			fmt.Fprintf(&b, "- Status: %s\n", o.Severity.Upper())
			fmt.Fprintf(&b, "- Message: %s\n", o.Message)
			if len(o.Metrics) > 0 {
				n := min(len(o.Metrics), maxPromptMetrics)
				parts := make([]string, 0, n)
				for _, m := range o.Metrics[:n] {
					parts = append(parts, fmt.Sprintf("%s=%v", m.Key, m.Value))
				}
				fmt.Fprintf(&b, "- Metrics: %s\n", strings.Join(parts, ", "))
			}
			if o.Error != "" {
				fmt.Fprintf(&b, "- Error: %s\n", o.Error)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(instructions)
	return b.String()
}
