package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/plan"
)

func newPlanCmd(a *app) *cobra.Command {
	var showEnv bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the experiment plan without running anything",
		Long: `Print the experiment plan. When a state file exists its persisted plan is
shown, since that is the plan a resumed run will follow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, source, err := activePlan(a)
			if err != nil {
				return err
			}
			printPlan(a, p, source, showEnv)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showEnv, "env", false, "show the environment assignment each case adds")
	return cmd
}

// activePlan prefers the persisted plan over the one the catalog would produce.
func activePlan(a *app) (plan.Plan, string, error) {
	st, err := a.store().Read()
	switch {
	case err == nil:
		return st.Plan, a.store().Path(), nil
	case errors.Is(err, fs.ErrNotExist):
		return plan.Build(a.catalog), "catalog", nil
	default:
		return plan.Plan{}, "", err
	}
}

func printPlan(a *app, p plan.Plan, source string, showEnv bool) {
	out := a.out
	fmt.Fprintf(out, "Plan from %s: %d cases over %d knobs\n\n", source, len(p.Cases), len(p.Baseline))
	for i, exp := range p.Cases {
		fmt.Fprintf(out, "%4d  %s", i, exp.Label())
		if showEnv && !exp.IsControl() {
			assignments := make([]string, len(exp.Overrides))
			for j, o := range exp.Overrides {
				assignments[j] = o.Knob.EnvVar + "=" + o.Value
			}
			fmt.Fprintf(out, "  [%s]", strings.Join(assignments, " "))
		}
		fmt.Fprintln(out)
	}

	planned := 0
	for _, o := range p.Baseline {
		planned += len(o.Knob.Values)
	}
	if skipped := planned - (len(p.Cases) - 1); skipped > 0 {
		fmt.Fprintf(out, "\n%d value(s) equal to their default were skipped\n", skipped)
	}
}

func newCatalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the active knob catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "built-in"
			if a.cfg.CatalogFile != "" {
				source = a.cfg.CatalogFile
			}
			fmt.Fprintf(a.out, "Catalog (%s):\n", source)
			fmt.Fprint(a.out, a.catalog.Describe())
			return nil
		},
	}
}
