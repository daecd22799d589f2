package catalog

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Report sheet names.
const (
	SummarySheet    = "Summary"
	SubmodulesSheet = "Submodules"
)

// Submodule status labels used in the report.
const (
	StatusCompleted = "completed"
	StatusCurrent   = "current"
	StatusLocked    = "locked"
)

// WriteReport renders a class view as an xlsx workbook with a per-module
// summary sheet and a per-submodule status sheet. The view must carry
// submodule detail, as returned by Service.Class.
func WriteReport(w io.Writer, learnerID string, class ClassView) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SubmodulesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	summary := [][]any{
		{"Class", class.Name},
		{"Learner", learnerID},
		{"Module", "Completed", "Total", "Percent"},
	}
	for _, m := range class.Modules {
		summary = append(summary, []any{m.Name, m.Progress.CompletedCount, m.Progress.TotalCount, m.Progress.Percentage})
	}
	summary = append(summary, []any{"All modules", class.Progress.CompletedCount, class.Progress.TotalCount, class.Progress.Percentage})
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}
	if err := styleRow(f, SummarySheet, 3, 4, header); err != nil {
		return err
	}

	detail := [][]any{{"Module", "Position", "Submodule", "Status"}}
	for _, m := range class.Modules {
		for _, s := range m.Submodules {
			detail = append(detail, []any{m.Name, s.Position + 1, s.Name, status(s)})
		}
	}
	if err := writeRows(f, SubmodulesSheet, detail); err != nil {
		return err
	}
	if err := styleRow(f, SubmodulesSheet, 1, 4, header); err != nil {
		return err
	}

	for _, sheet := range []string{SummarySheet, SubmodulesSheet} {
		if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetColWidth(SubmodulesSheet, "C", "C", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func status(s SubmoduleView) string {
	switch {
	case s.Completed:
		return StatusCompleted
	case s.Current:
		return StatusCurrent
	default:
		return StatusLocked
	}
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("style %s row %d: %w", sheet, row, err)
	}
	return nil
}
