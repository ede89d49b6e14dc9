// Package crawler sequences a full image health run: discover the bounded
// page set, then render each page, collect its images, and check every
// resolved image URL through the deduplicating status checker.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"imagehealth/internal/browser"
	"imagehealth/internal/check"
	"imagehealth/internal/config"
	"imagehealth/internal/discover"
	"imagehealth/internal/extract"
	"imagehealth/internal/scope"
	"imagehealth/pkg/types"
)

// CookieSyncer is implemented by sessions that can copy their browser
// cookies into the check client before the checking phase starts.
type CookieSyncer interface {
	SyncCookies(ctx context.Context) error
}

// Engine orchestrates one run. Phases move forward only:
// discovering -> checking -> done.
type Engine struct {
	cfg        config.Config
	page       browser.Page
	baseURL    *url.URL
	classifier scope.Classifier

	discoverer *discover.Engine
	extractor  *extract.Engine
	checker    *check.Checker

	progress types.ProgressFunc
	logger   *slog.Logger
}

// New wires an engine from configuration, a rendering session, and the HTTP
// client used for image checks (ideally the session-shared one).
func New(cfg config.Config, pg browser.Page, client *http.Client, progress types.ProgressFunc, logger *slog.Logger) (*Engine, error) {
	if pg == nil {
		return nil, fmt.Errorf("rendering page is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL, err := url.Parse(cfg.Crawl.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	mode, err := scope.ParseMatchMode(cfg.Crawl.InternalMatch)
	if err != nil {
		return nil, err
	}
	classifier := scope.NewClassifier(baseURL, mode)

	discoverer := discover.New(pg, classifier, discover.Options{
		MaxDepth:          cfg.Discovery.MaxDepth,
		MaxPages:          cfg.Crawl.MaxPages,
		MaxLoadMoreClicks: cfg.Discovery.MaxLoadMoreClicks,
		ContentKeywords:   cfg.Discovery.ContentKeywords,
		LoadMoreWait:      cfg.Discovery.LoadMoreWait.Duration,
		IdleTimeout:       cfg.Rendering.IdleTimeout.Duration,
	}, logger)

	return &Engine{
		cfg:        cfg,
		page:       pg,
		baseURL:    baseURL,
		classifier: classifier,
		discoverer: discoverer,
		extractor:  extract.New(cfg.Rendering, logger),
		checker:    check.New(client, check.NewRunCache(), cfg.Check, cfg.Crawl.UserAgent, logger),
		progress:   progress,
		logger:     logger,
	}, nil
}

// Run executes the two-phase scan and returns the ordered report. A failing
// page is skipped with a warning; only context cancellation ends the run
// early, and even then the rows accumulated so far are returned.
func (e *Engine) Run(ctx context.Context) (*types.Report, error) {
	started := time.Now()

	e.progress.Report(types.PhaseDiscovering, "Step 1/2: discovering content pages", 0)
	pages := e.discoverer.Run(ctx, e.baseURL, e.progress)
	if len(pages) > e.cfg.Crawl.MaxPages {
		pages = pages[:e.cfg.Crawl.MaxPages]
	}
	e.logger.Info("discovery complete", "pages", len(pages))

	if syncer, ok := e.page.(CookieSyncer); ok {
		if err := syncer.SyncCookies(ctx); err != nil {
			e.logger.Warn("cookie sync failed, checks proceed without session cookies", "error", err)
		}
	}

	e.progress.Report(types.PhaseChecking, "Step 2/2: checking images on all pages", 0)
	var rows []types.ResultRow
	total := len(pages)
	for idx, pageURL := range pages {
		if ctx.Err() != nil {
			e.logger.Warn("run cancelled", "pages_done", idx)
			break
		}
		e.progress.Report(types.PhaseChecking,
			fmt.Sprintf("Checking page %d/%d: %s", idx+1, total, pageURL),
			float64(idx+1)/float64(total))

		pageRows, err := e.checkPage(ctx, pageURL)
		if err != nil {
			e.logger.Warn("page skipped", "url", pageURL.String(), "error", err)
			continue
		}
		rows = append(rows, pageRows...)
	}

	report := &types.Report{
		RunID:        uuid.NewString(),
		BaseURL:      e.baseURL.String(),
		Rows:         rows,
		PagesCrawled: len(pages),
		StartedAt:    started,
		Elapsed:      time.Since(started),
	}
	e.progress.Report(types.PhaseDone,
		fmt.Sprintf("Scan complete: %d images across %d pages in %s",
			len(rows), len(pages), report.Elapsed.Round(time.Millisecond)), 1)
	return report, nil
}

// checkPage renders one page, extracts its image references, and produces a
// result row per kept image, preserving extraction order.
func (e *Engine) checkPage(ctx context.Context, pageURL *url.URL) ([]types.ResultRow, error) {
	if err := e.page.Navigate(ctx, pageURL.String()); err != nil {
		return nil, err
	}

	refs := e.extractor.Images(ctx, e.page)
	rows := make([]types.ResultRow, 0, len(refs))
	for _, ref := range refs {
		resolved, ok := scope.Resolve(pageURL, ref.RawURL)
		if !ok {
			continue
		}
		if !e.cfg.Crawl.IncludeExternal && !e.classifier.IsInternal(resolved) {
			continue
		}
		result := e.checker.Check(ctx, resolved.String())
		rows = append(rows, types.ResultRow{
			PageURL:        pageURL.String(),
			ImageURL:       resolved.String(),
			StatusCode:     result.StatusCode,
			Classification: result.Classification,
			CheckedAt:      result.CheckedAt,
		})
	}
	return rows, nil
}

// BuildLogger constructs the process logger from logging configuration.
func BuildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
