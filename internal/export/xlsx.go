package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"imagehealth/pkg/types"
)

// XLSXSink writes the report as a spreadsheet with one worksheet per run,
// named after the scan time, with a styled header row.
type XLSXSink struct {
	Path string
}

func (s *XLSXSink) Name() string { return "xlsx" }

func (s *XLSXSink) Export(ctx context.Context, report *types.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Scan_" + report.StartedAt.Format("2006-01-02 15.04")
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(types.ResultColumns))
	for i, col := range types.ResultColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.PageURL, row.ImageURL, row.StatusCode, string(row.Classification), row.CheckedAt.Format("2006-01-02 15:04:05")}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"3333CC"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "B", 60); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.SaveAs(s.Path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}
