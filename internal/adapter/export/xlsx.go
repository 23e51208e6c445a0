// Package export renders job records as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/bnema/orator/internal/domain"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Jobs"

var header = []any{
	"ID", "Filename", "Uploaded", "Size (bytes)", "Duration (s)", "Model",
	"Stage", "Progress (%)", "Words", "Summary", "Questions", "Transcription",
}

var columnWidths = map[string]float64{
	"A": 6, "B": 32, "C": 22, "D": 14, "E": 14, "F": 24,
	"G": 18, "H": 13, "I": 8, "J": 60, "K": 60, "L": 80,
}

// WriteXLSX writes one row per job, in the order given, to w.
func WriteXLSX(w io.Writer, jobs []*domain.Job) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for col, width := range columnWidths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	for i, job := range jobs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := jobRow(job)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write job %d: %w", job.ID, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func jobRow(j *domain.Job) []any {
	return []any{
		j.ID,
		j.Filename,
		j.UploadedAt.UTC().Format(time.DateTime),
		orEmpty(j.FileSize),
		orEmpty(j.AudioDuration),
		orEmpty(j.SelectedModel),
		string(j.ProcessingStage),
		j.ProgressPercentage,
		j.WordCount,
		orEmpty(j.Summary),
		orEmpty(j.Questions),
		orEmpty(j.Transcription),
	}
}

func orEmpty[T any](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}
