package notes

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrNoNotes is returned when exporting a lesson without notes.
var ErrNoNotes = errors.New("no notes to export")

const exportSheet = "Notes"

// ExportInfo labels an exported workbook.
type ExportInfo struct {
	CourseTitle string
	UnitTitle   string
	LessonTitle string
	ExportedAt  time.Time
}

// FileName returns the download name of the workbook.
func (i ExportInfo) FileName() string {
	unit := i.UnitTitle
	if unit == "" {
		unit = "Unit"
	}
	return fmt.Sprintf("%s - %s - Notes.xlsx", unit, i.LessonTitle)
}

// ExportXLSX writes notes as a single-sheet workbook: a title block followed
// by one row per note in the given order.
func ExportXLSX(w io.Writer, info ExportInfo, notes []Note) error {
	if len(notes) == 0 {
		return ErrNoNotes
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16, Color: "2563EB"}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	unit := info.UnitTitle
	if unit == "" {
		unit = "Unit"
	}
	header := [][]any{
		{fmt.Sprintf("%s - %s", unit, info.LessonTitle)},
		{"Course: " + info.CourseTitle},
		{"Exported: " + info.ExportedAt.Format("2006-01-02")},
		{},
		{"#", "Timestamp", "Created", "Content"},
	}
	for i, row := range header {
		if err := setRow(f, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(exportSheet, "A1", "A1", title); err != nil {
		return fmt.Errorf("style title: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A5", "D5", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, n := range notes {
		row := []any{i + 1, FormatTimestamp(n.Timestamp), n.CreatedAt.Format(time.DateTime), n.Content}
		if err := setRow(f, len(header)+i+1, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(exportSheet, "C", "C", 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "D", "D", 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
