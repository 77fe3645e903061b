package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/config"
	bcperrors "github.com/odvcencio/bcp/pkg/errors"
)

func newReportCmd(a *app) *cobra.Command {
	var formats []string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the report of a completed sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				formats = a.cfg.Report.Formats
			}
			for _, f := range formats {
				if !slices.Contains([]string{config.FormatMarkdown, config.FormatHTML, config.FormatXLSX, config.FormatTerminal}, f) {
					return bcperrors.New(bcperrors.ErrCodeInvalidInput, fmt.Sprintf("unknown report format %q", f)).
						WithRemediation("use markdown, html, xlsx or terminal")
				}
			}

			st, err := a.store().Read()
			if err != nil {
				return err
			}
			if !st.Complete() {
				return bcperrors.New(bcperrors.ErrCodeInvariant, "report requested before the sweep completed").
					WithContext("recorded", st.Next()).
					WithContext("cases", len(st.Plan.Cases)).
					WithRemediation("run `bcp run` to finish the remaining cases")
			}
			return writeReports(a, st, formats)
		},
	}
	cmd.Flags().StringSliceVar(&formats, "format", nil, "formats to render (default from config)")
	return cmd
}
