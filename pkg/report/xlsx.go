package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Ranking"

var xlsxHeader = []any{"Rank", "Case", "Experiment", "Build (s)", "Run (s)", "Total (s)", "vs baseline"}

// WriteXLSX saves the ranking as a spreadsheet with one row per entry.
func WriteXLSX(r Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &xlsxHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, e := range r.Entries {
		var delta any = ""
		if d, ok := r.Delta(e); ok && !e.Experiment.IsControl() {
			delta = d
		}
		row := []any{
			i + 1,
			e.Case,
			e.Label(),
			e.Result.Build.Seconds(),
			e.Result.Run.Seconds(),
			e.Result.Total().Seconds(),
			delta,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if len(r.Entries) > 0 {
		pct, err := f.NewStyle(&excelize.Style{NumFmt: 10})
		if err != nil {
			return fmt.Errorf("create style: %w", err)
		}
		last := fmt.Sprintf("G%d", len(r.Entries)+1)
		if err := f.SetCellStyle(xlsxSheet, "G2", last, pct); err != nil {
			return fmt.Errorf("style deltas: %w", err)
		}
	}
	if err := f.SetColWidth(xlsxSheet, "C", "C", 36); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save spreadsheet: %w", err)
	}
	return nil
}
