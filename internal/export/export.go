// Package export persists a finished scan report. The crawl core hands the
// report over and has no dependency on any sink's success; a failing sink is
// reported but never aborts the others.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"imagehealth/internal/config"
	"imagehealth/pkg/types"
)

// Sink persists a report to one destination.
type Sink interface {
	Name() string
	Export(ctx context.Context, report *types.Report) error
}

// Pipeline fans a report out to every configured sink.
type Pipeline struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewPipeline builds a pipeline from export configuration. Destinations with
// empty values are disabled.
func NewPipeline(cfg config.ExportConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	if cfg.CSVPath != "" {
		sinks = append(sinks, &CSVSink{Path: cfg.CSVPath})
	}
	if cfg.XLSXPath != "" {
		sinks = append(sinks, &XLSXSink{Path: cfg.XLSXPath})
	}
	if cfg.SQLiteDSN != "" {
		sinks = append(sinks, &SQLiteSink{DSN: cfg.SQLiteDSN})
	}
	return &Pipeline{sinks: sinks, logger: logger}
}

// Export runs every sink, joining their errors.
func (p *Pipeline) Export(ctx context.Context, report *types.Report) error {
	if report == nil {
		return errors.New("report is nil")
	}
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Export(ctx, report); err != nil {
			p.logger.Error("export failed", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		p.logger.Info("report exported", "sink", sink.Name())
	}
	return errors.Join(errs...)
}

// Enabled reports whether any sink is configured.
func (p *Pipeline) Enabled() bool {
	return len(p.sinks) > 0
}
