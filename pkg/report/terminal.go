package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// TerminalReporter renders a report with colors and a bar chart of totals.
type TerminalReporter struct {
	out     io.Writer
	noColor bool
	width   int

	headerStyle lipgloss.Style
	dimStyle    lipgloss.Style
	boldStyle   lipgloss.Style
	barStyle    lipgloss.Style
	fasterStyle lipgloss.Style
	slowerStyle lipgloss.Style
	winnerStyle lipgloss.Style
}

// NewTerminalReporter creates a reporter writing to out. Colors are disabled
// when out is not a terminal.
func NewTerminalReporter(out io.Writer) *TerminalReporter {
	r := &TerminalReporter{
		out:     out,
		noColor: !IsTerminal(out),
		width:   terminalWidth(out),

		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"}).
			Bold(true),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),

		boldStyle: lipgloss.NewStyle().Bold(true),

		barStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}),

		fasterStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),

		slowerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}),

		winnerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}).
			Bold(true),
	}
	return r
}

// SetNoColor disables color output.
func (r *TerminalReporter) SetNoColor(noColor bool) {
	r.noColor = noColor
}

// Render writes the header, ranking table, chart and winner line.
func (r *TerminalReporter) Render(rep Report) error {
	if len(rep.Entries) == 0 {
		return fmt.Errorf("report has no entries")
	}
	r.renderHeader(rep)
	r.renderTable(rep)
	r.renderChart(rep)
	r.renderWinner(rep)
	return nil
}

// RenderMarkdown pretty-prints the markdown report with glamour.
func (r *TerminalReporter) RenderMarkdown(rep Report) error {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(min(r.width, 100))}
	if r.noColor {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(Markdown(rep))
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(r.out, out)
	return err
}

func (r *TerminalReporter) renderHeader(rep Report) {
	title := fmt.Sprintf("Sweep %s", rep.SweepID)
	fmt.Fprintln(r.out, r.style(r.headerStyle, title))
	fmt.Fprintln(r.out, r.style(r.dimStyle, strings.Repeat("─", max(min(r.width-2, 70), 0))))
	if rep.Meta.Revision != "" {
		fmt.Fprintln(r.out, r.style(r.dimStyle, "revision "+shortRevision(rep.Meta.Revision)))
	}
	fmt.Fprintln(r.out)
}

func (r *TerminalReporter) renderTable(rep Report) {
	fmt.Fprintf(r.out, "%4s  %-32s │ %9s │ %9s │ %9s │ %8s\n",
		"#", "Experiment", "Build", "Run", "Total", "Δ")
	fmt.Fprintln(r.out, strings.Repeat("─", 38)+"┼"+strings.Repeat("─", 11)+"┼"+
		strings.Repeat("─", 11)+"┼"+strings.Repeat("─", 11)+"┼"+strings.Repeat("─", 10))

	for i, e := range rep.Entries {
		delta := rep.deltaString(e)
		if d, ok := rep.Delta(e); ok && !e.Experiment.IsControl() {
			switch {
			case d < 0:
				delta = r.style(r.fasterStyle, delta)
			case d > 0:
				delta = r.style(r.slowerStyle, delta)
			}
		}
		fmt.Fprintf(r.out, "%4d  %-32s │ %9s │ %9s │ %9s │ %8s\n",
			i+1,
			truncateString(e.Label(), 32),
			formatSeconds(e.Result.Build),
			formatSeconds(e.Result.Run),
			formatSeconds(e.Result.Total()),
			delta,
		)
	}
	fmt.Fprintln(r.out)
}

func (r *TerminalReporter) renderChart(rep Report) {
	fmt.Fprintln(r.out, r.style(r.boldStyle, "Total time:"))

	var maxTotal float64
	for _, e := range rep.Entries {
		maxTotal = max(maxTotal, e.Result.Total().Seconds())
	}

	barWidth := r.chartBarWidth()
	for _, e := range rep.Entries {
		label := truncateString(e.Label(), 20)
		bar := buildBar(e.Result.Total().Seconds(), maxTotal, barWidth)
		fmt.Fprintf(r.out, "%-20s %s %s\n", label, r.style(r.barStyle, bar), formatSeconds(e.Result.Total()))
	}
	fmt.Fprintln(r.out)
}

func (r *TerminalReporter) renderWinner(rep Report) {
	winner := rep.Entries[0]
	reason := ""
	if d, ok := rep.Delta(winner); ok && d < 0 {
		reason = fmt.Sprintf(" (%.1f%% faster than baseline)", -d*100)
	}
	fmt.Fprintf(r.out, "%s %s%s\n",
		r.style(r.winnerStyle, "Fastest:"),
		r.style(r.boldStyle, winner.Label()),
		r.style(r.dimStyle, reason),
	)
}

func (r *TerminalReporter) style(s lipgloss.Style, text string) string {
	if r.noColor {
		return text
	}
	return s.Render(text)
}

func (r *TerminalReporter) chartBarWidth() int {
	// Label (20) + space + bar + space + value (~10)
	return min(max(r.width-20-12, 10), 40)
}

func buildBar(value, maxValue float64, width int) string {
	if maxValue == 0 {
		return strings.Repeat("░", width)
	}

	filled := min(int(value/maxValue*float64(width)), width)
	if value > 0 && filled == 0 {
		filled = 1
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

func truncateString(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-1]) + "…"
}
