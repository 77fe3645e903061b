package report

import (
	"fmt"
	"strings"

	"github.com/odvcencio/bcp/pkg/state"
)

// Progress renders a possibly incomplete state in plan order: recorded cases
// with their timings, then the pending ones.
func Progress(st *state.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sweep in progress\n\n%d of %d cases recorded", st.Next(), len(st.Plan.Cases))
	if st.Meta.Revision != "" {
		fmt.Fprintf(&b, " at revision `%s`", shortRevision(st.Meta.Revision))
	}
	b.WriteString(".\n\n")

	b.WriteString("| Case | Experiment | Build | Run | Status |\n")
	b.WriteString("|-----:|------------|------:|----:|--------|\n")
	for i, exp := range st.Plan.Cases {
		build, run, status := "", "", "pending"
		switch {
		case i < len(st.Results):
			build = formatSeconds(st.Results[i].Build)
			run = formatSeconds(st.Results[i].Run)
			status = "done"
		case i == st.Next():
			status = "next"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i, escapeCell(exp.Label()), build, run, status)
	}
	return b.String()
}
