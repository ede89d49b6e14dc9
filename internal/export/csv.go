package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"imagehealth/pkg/types"
)

// CSVSink writes the report as a CSV file with a header row.
type CSVSink struct {
	Path string
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Export(ctx context.Context, report *types.Report) error {
	fh, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer fh.Close()

	if err := WriteCSV(fh, report); err != nil {
		return err
	}
	return fh.Close()
}

// WriteCSV streams the report rows to the writer.
func WriteCSV(w io.Writer, report *types.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.ResultColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range report.Rows {
		if err := cw.Write(row.Strings()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
