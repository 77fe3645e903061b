// Package plan derives the ordered experiment list for a sweep and merges an
// experiment's overrides onto the baseline configuration.
package plan

import (
	"strings"

	"github.com/odvcencio/bcp/pkg/knob"
)

// Baseline holds exactly one override per catalog knob, each at its default.
type Baseline []knob.Override

// Experiment is one planned trial. Generated plans use zero overrides (the
// control) or exactly one.
type Experiment struct {
	Overrides []knob.Override `json:"overrides"`
}

// IsControl reports whether the experiment runs the unmodified baseline.
func (e Experiment) IsControl() bool {
	return len(e.Overrides) == 0
}

// Label is a short human-readable name, e.g. "baseline" or "opt-level=0".
func (e Experiment) Label() string {
	if e.IsControl() {
		return "baseline"
	}
	parts := make([]string, len(e.Overrides))
	for i, o := range e.Overrides {
		parts[i] = o.String()
	}
	return strings.Join(parts, ", ")
}

// Plan is the immutable sweep definition. The order of Cases is the index
// space results align to.
type Plan struct {
	Baseline Baseline     `json:"baseline"`
	Cases    []Experiment `json:"cases"`
}

// Build derives a plan from a catalog. The first case is always the control;
// after it come single-override cases knob by knob and value by value in
// catalog order. Cases whose override equals the default are skipped.
func Build(catalog knob.Catalog) Plan {
	baseline := make(Baseline, 0, len(catalog))
	for _, def := range catalog {
		baseline = append(baseline, knob.Override{Knob: def, Value: def.Default})
	}

	cases := []Experiment{{Overrides: []knob.Override{}}}
	for _, def := range catalog {
		for _, value := range def.Values {
			exp := Experiment{Overrides: []knob.Override{{Knob: def, Value: value}}}
			if baseline.Contains(exp.Overrides) {
				continue
			}
			cases = append(cases, exp)
		}
	}

	return Plan{Baseline: baseline, Cases: cases}
}

// Contains reports whether every override already appears in the baseline.
// An empty override set is trivially contained.
func (b Baseline) Contains(overrides []knob.Override) bool {
	for _, o := range overrides {
		found := false
		for _, entry := range b {
			if entry.Equal(o) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Catalog recovers the knob definitions the baseline was built from.
func (b Baseline) Catalog() knob.Catalog {
	catalog := make(knob.Catalog, len(b))
	for i, o := range b {
		catalog[i] = o.Knob
	}
	return catalog
}

// Redundant returns the indexes of non-control cases that would only
// re-measure the baseline. A plan produced by Build has none.
func (p Plan) Redundant() []int {
	var idx []int
	for i, c := range p.Cases {
		if !c.IsControl() && p.Baseline.Contains(c.Overrides) {
			idx = append(idx, i)
		}
	}
	return idx
}
