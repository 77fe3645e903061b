// Package report ranks the results of a completed sweep and renders them as
// markdown, HTML, a terminal summary or a spreadsheet.
package report

import (
	"fmt"
	"slices"
	"time"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/plan"
	"github.com/odvcencio/bcp/pkg/state"
)

// Entry pairs a case with its measurement.
type Entry struct {
	Case       int
	Experiment plan.Experiment
	Result     state.Result
}

// Label names the entry's experiment.
func (e Entry) Label() string {
	return e.Experiment.Label()
}

// Report is the ranked view of a sweep, fastest total first.
type Report struct {
	SweepID string
	Meta    state.Meta
	Entries []Entry
}

// Build ranks a completed state by build plus run time. Ties keep plan order.
// An incomplete state is an internal-consistency fault.
func Build(st *state.State) (Report, error) {
	if !st.Complete() {
		return Report{}, bcperrors.New(bcperrors.ErrCodeInvariant, "report requested before the sweep completed").
			WithContext("results", len(st.Results)).
			WithContext("cases", len(st.Plan.Cases))
	}

	entries := make([]Entry, len(st.Plan.Cases))
	for i, exp := range st.Plan.Cases {
		entries[i] = Entry{Case: i, Experiment: exp, Result: st.Results[i]}
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		switch ta, tb := a.Result.Total(), b.Result.Total(); {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	})

	return Report{SweepID: st.ID, Meta: st.Meta, Entries: entries}, nil
}

// Control returns the entry of the unmodified baseline, if the plan has one.
func (r Report) Control() (Entry, bool) {
	for _, e := range r.Entries {
		if e.Experiment.IsControl() {
			return e, true
		}
	}
	return Entry{}, false
}

// Delta is the relative change of e's total against the control, e.g. -0.12
// for 12% faster. ok is false when there is no usable control.
func (r Report) Delta(e Entry) (delta float64, ok bool) {
	control, found := r.Control()
	if !found || control.Result.Total() <= 0 {
		return 0, false
	}
	base := float64(control.Result.Total())
	return (float64(e.Result.Total()) - base) / base, true
}

func (r Report) deltaString(e Entry) string {
	if e.Experiment.IsControl() {
		return "-"
	}
	d, ok := r.Delta(e)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", d*100)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
