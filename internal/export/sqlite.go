package export

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"imagehealth/pkg/types"
)

const scanResultsSchema = `
CREATE TABLE IF NOT EXISTS scan_results (
	run_id      TEXT NOT NULL,
	base_url    TEXT NOT NULL,
	page_url    TEXT NOT NULL,
	image_url   TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	status      TEXT NOT NULL,
	checked_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_results_run ON scan_results (run_id);
`

// SQLiteSink appends the report rows to a local SQLite database, one row per
// checked image occurrence, keyed by the run id.
type SQLiteSink struct {
	DSN string
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Export(ctx context.Context, report *types.Report) error {
	db, err := sql.Open("sqlite3", s.DSN)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, scanResultsSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scan_results
		(run_id, base_url, page_url, image_url, status_code, status, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range report.Rows {
		if _, err := stmt.ExecContext(ctx,
			report.RunID, report.BaseURL,
			row.PageURL, row.ImageURL, row.StatusCode,
			string(row.Classification), row.CheckedAt,
		); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
