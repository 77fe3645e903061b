package report

import (
	"fmt"
	"strings"
)

// Markdown renders the ranking as a GitHub-flavoured table.
func Markdown(r Report) string {
	var b strings.Builder
	b.WriteString("# Build configuration sweep\n\n")
	if r.SweepID != "" {
		fmt.Fprintf(&b, "Sweep `%s`", r.SweepID)
		if r.Meta.Revision != "" {
			fmt.Fprintf(&b, " at revision `%s`", shortRevision(r.Meta.Revision))
		}
		b.WriteString("\n\n")
	}

	b.WriteString("| Rank | Experiment | Build | Run | Total | vs baseline |\n")
	b.WriteString("|-----:|------------|------:|----:|------:|------------:|\n")
	for i, e := range r.Entries {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			i+1,
			escapeCell(e.Label()),
			formatSeconds(e.Result.Build),
			formatSeconds(e.Result.Run),
			formatSeconds(e.Result.Total()),
			r.deltaString(e),
		)
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
