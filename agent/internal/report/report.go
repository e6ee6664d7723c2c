package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/analysis"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const (
	separator         = "━━━━━━━━━━━━━━━━━━━━━━━━"
	maxIssueMetrics   = 3
	maxAffected       = 5
	maxFooterErrors   = 3
	missingAnalysisTx = "No analysis available"
)

// Input is everything Compose needs for one run.
type Input struct {
	All    []types.Observation
	Issues []types.Observation

	// Analysis may be nil when the analysis stage never ran.
	Analysis *analysis.Payload

	GeneratedAt time.Time
	Duration    time.Duration
	Tokens      int
	Errors      []string
}

// Compose renders in. It never fails; missing pieces become placeholders.
func Compose(in Input) string {
	var b strings.Builder
	writeHeader(&b, in)
	b.WriteString("\n")
	writeSummary(&b, in.All)
	if len(in.Issues) > 0 {
		b.WriteString("\n")
		writeIssues(&b, in.Issues)
		b.WriteString("\n")
		writeAnalysis(&b, in.Analysis)
	}
	b.WriteString("\n")
	writeFooter(&b, in)
	return b.String()
}

// Overall returns the headline tier for a set of issues: red, then yellow,
// then unknown. No issues is green.
func Overall(issues []types.Observation) types.Severity {
	return worstIssue(issues, types.SeverityGreen)
}

func worstIssue(obs []types.Observation, none types.Severity) types.Severity {
	var red, yellow, unknown bool
	for _, o := range obs {
		switch o.Severity {
		case types.SeverityRed:
			red = true
		case types.SeverityYellow:
			yellow = true
		case types.SeverityUnknown:
			unknown = true
		}
	}
	switch {
	case red:
		return types.SeverityRed
	case yellow:
		return types.SeverityYellow
	case unknown:
		return types.SeverityUnknown
	}
	return none
}

func countSeverity(obs []types.Observation, s types.Severity) int {
	n := 0
	for _, o := range obs {
		if o.Severity == s {
			n++
		}
	}
	return n
}

func writeHeader(b *strings.Builder, in Input) {
	overall := Overall(in.Issues)
	label := map[types.Severity]string{
		types.SeverityRed:     "Critical Issues",
		types.SeverityYellow:  "Warnings",
		types.SeverityUnknown: "Unknown Status",
		types.SeverityGreen:   "All Systems Healthy",
	}[overall]

	ts := in.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	total := len(in.All)
	passed := total - len(in.Issues)
	if passed < 0 {
		passed = 0
	}

	fmt.Fprintf(b, "%s **Infrastructure Health Report**\n", overall.Emoji())
	fmt.Fprintf(b, "📅 %s\n\n", ts.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(b, "📊 **Overall Status**: %s\n", label)
	fmt.Fprintf(b, "✅ %d/%d checks passed\n", passed, total)
	if n := countSeverity(in.Issues, types.SeverityRed); n > 0 {
		fmt.Fprintf(b, "🔴 %d critical issue(s)\n", n)
	}
	if n := countSeverity(in.Issues, types.SeverityYellow); n > 0 {
		fmt.Fprintf(b, "🟡 %d warning(s)\n", n)
	}
	if n := countSeverity(in.Issues, types.SeverityUnknown); n > 0 {
		fmt.Fprintf(b, "⚪ %d unknown\n", n)
	}
	b.WriteString("\n" + separator + "\n")
}

func writeSummary(b *strings.Builder, all []types.Observation) {
	groups := make(map[string][]types.Observation)
	for _, o := range all {
		groups[o.Collector] = append(groups[o.Collector], o)
	}
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)

	b.WriteString("## 📦 Summary by Type\n\n")
	if len(names) == 0 {
		b.WriteString("No checks ran\n")
		return
	}
	for _, name := range names {
		obs := groups[name]
		issues := types.Issues(obs)
		worst := worstIssue(issues, types.SeverityGreen)
		fmt.Fprintf(b, "%s **%s**: %d/%d healthy\n",
			worst.Emoji(), strings.ToUpper(name), len(obs)-len(issues), len(obs))
	}
}

func writeIssues(b *strings.Builder, issues []types.Observation) {
	b.WriteString(separator + "\n")
	b.WriteString("## 🚨 Issues Detected\n\n")

	sections := []struct {
		sev   types.Severity
		title string
	}{
		{types.SeverityRed, "### 🔴 Critical Issues"},
		{types.SeverityYellow, "### 🟡 Warnings"},
		{types.SeverityUnknown, "### ⚪ Unknown Status"},
	}
	for _, s := range sections {
		var group []types.Observation
		for _, o := range issues {
			if o.Severity == s.sev {
				group = append(group, o)
			}
		}
		if len(group) == 0 {
			continue
		}
		b.WriteString(s.title + "\n\n")
		for _, o := range group {
			fmt.Fprintf(b, "**%s** (%s)\n", o.Target, o.Collector)
			fmt.Fprintf(b, "└─ %s\n", o.Message)
			if len(o.Metrics) > 0 {
				fmt.Fprintf(b, "   📊 %s\n", FormatMetrics(o.Metrics, maxIssueMetrics))
			}
			b.WriteString("\n")
		}
	}
}

func writeAnalysis(b *strings.Builder, p *analysis.Payload) {
	b.WriteString(separator + "\n")
	b.WriteString("## 🤖 AI Analysis\n\n")
	if p == nil {
		b.WriteString(missingAnalysisTx + "\n")
		return
	}

	rootCause := p.RootCause
	if rootCause == "" {
		rootCause = "Unknown"
	}
	sev := p.Severity
	if sev == "" {
		sev = "unknown"
	}
	fmt.Fprintf(b, "**Root Cause**: %s\n", rootCause)
	fmt.Fprintf(b, "**Severity**: %s\n\n", strings.ToUpper(sev))

	if n := len(p.AffectedSystems); n > 0 {
		shown := p.AffectedSystems[:min(n, maxAffected)]
		fmt.Fprintf(b, "**Affected Systems**: %s\n", strings.Join(shown, ", "))
		if n > maxAffected {
			fmt.Fprintf(b, "   ... and %d more\n", n-maxAffected)
		}
		b.WriteString("\n")
	}

	if len(p.Recommendations) > 0 {
		b.WriteString("**Recommended Actions**:\n\n")
		for i, r := range p.Recommendations {
			prio := strings.ToUpper(r.Priority)
			if prio == "" {
				prio = "MEDIUM"
			}
			action := r.Action
			if action == "" {
				action = "No action specified"
			}
			fmt.Fprintf(b, "%d. %s **[%s]** %s\n", i+1, priorityEmoji(prio), prio, action)
			if r.Rationale != "" {
				fmt.Fprintf(b, "   └─ %s\n", r.Rationale)
			}
			b.WriteString("\n")
		}
	}
}

func priorityEmoji(prio string) string {
	switch prio {
	case "IMMEDIATE":
		return "🔥"
	case "HIGH":
		return "⚠️"
	case "LOW":
		return "💡"
	default:
		return "ℹ️"
	}
}

func writeFooter(b *strings.Builder, in Input) {
	b.WriteString(separator + "\n")
	fmt.Fprintf(b, "⏱ **Execution time**: %.1fs\n", in.Duration.Seconds())
	fmt.Fprintf(b, "🔤 **LLM tokens used**: %s\n", groupThousands(int64(in.Tokens)))
	if n := len(in.Errors); n > 0 {
		fmt.Fprintf(b, "⚠️ **Errors encountered**: %d\n", n)
		for _, e := range in.Errors[:min(n, maxFooterErrors)] {
			fmt.Fprintf(b, "   • %s\n", e)
		}
		if n > maxFooterErrors {
			fmt.Fprintf(b, "   ... and %d more\n", n-maxFooterErrors)
		}
	}
	b.WriteString("\n_Generated by infra monitoring agent_")
}

// FormatMetrics renders up to limit metrics as "k=v" pairs. Floats get two
// decimals and integers get thousands separators.
func FormatMetrics(ms types.Metrics, limit int) string {
	if len(ms) == 0 {
		return "No metrics"
	}
	n := min(len(ms), limit)
	parts := make([]string, 0, n)
	for _, m := range ms[:n] {
		parts = append(parts, m.Key+"="+formatValue(m.Value))
	}
	out := strings.Join(parts, ", ")
	if len(ms) > limit {
		out += fmt.Sprintf(", ... (%d more)", len(ms)-limit)
	}
	return out
}

func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', 2, 32)
	case int:
		return groupThousands(int64(n))
	case int32:
		return groupThousands(int64(n))
	case int64:
		return groupThousands(n)
	default:
		return fmt.Sprint(v)
	}
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}
