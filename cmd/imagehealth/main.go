package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"imagehealth/internal/browser"
	"imagehealth/internal/config"
	"imagehealth/internal/crawler"
	"imagehealth/internal/export"
	"imagehealth/pkg/types"
)

// cliOptions holds the parsed command-line values; only flags the user
// actually passed override the configuration file.
type cliOptions struct {
	configPath      string
	baseURL         string
	maxPages        int
	includeExternal bool
	csvPath         string
	xlsxPath        string
}

func registerFlags(fs *flag.FlagSet, opts *cliOptions) {
	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file")
	fs.StringVar(&opts.baseURL, "url", "", "website URL to scan (overrides config)")
	fs.IntVar(&opts.maxPages, "max-pages", 0, "maximum pages to crawl (overrides config)")
	fs.BoolVar(&opts.includeExternal, "include-external", false, "also check images hosted on external domains (overrides config)")
	fs.StringVar(&opts.csvPath, "csv", "", "write results to this CSV file")
	fs.StringVar(&opts.xlsxPath, "xlsx", "", "write results to this XLSX file")
}

func applyFlagOverrides(cfg *config.Config, fs *flag.FlagSet, opts *cliOptions) {
	passed := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { passed[f.Name] = true })

	if opts.baseURL != "" {
		cfg.Crawl.BaseURL = opts.baseURL
	}
	if opts.maxPages > 0 {
		cfg.Crawl.MaxPages = opts.maxPages
	}
	// A boolean flag's zero value is indistinguishable from "not passed", so
	// the override applies in either direction only when the flag appeared.
	if passed["include-external"] {
		cfg.Crawl.IncludeExternal = opts.includeExternal
	}
	if opts.csvPath != "" {
		cfg.Export.CSVPath = opts.csvPath
	}
	if opts.xlsxPath != "" {
		cfg.Export.XLSXPath = opts.xlsxPath
	}
}

func main() {
	var opts cliOptions
	registerFlags(flag.CommandLine, &opts)
	flag.Parse()

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	applyFlagOverrides(&cfg, flag.CommandLine, &opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := crawler.BuildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := browser.NewSession(ctx, browser.Options{
		UserAgent:         cfg.Crawl.UserAgent,
		DisableHeadless:   cfg.Rendering.DisableHeadless,
		NavigationTimeout: cfg.Rendering.NavigationTimeout.Duration,
		RequestTimeout:    cfg.Check.Timeout.Duration,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start browser session: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()

	progress := func(phase types.Phase, message string, fraction float64) {
		logger.Info(message, "phase", string(phase), "progress", fmt.Sprintf("%.0f%%", fraction*100))
	}

	engine, err := crawler.New(cfg, session, session.Client(), progress, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	report, err := engine.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan stopped with error: %v\n", err)
		os.Exit(1)
	}

	summary := report.Summary()
	logger.Info("scan finished",
		"run_id", report.RunID,
		"pages", report.PagesCrawled,
		"total_images", summary.TotalImages,
		"working", summary.Working,
		"broken", summary.Broken,
		"success_rate", fmt.Sprintf("%.1f%%", summary.SuccessRate),
		"elapsed", report.Elapsed.String(),
	)

	pipeline := export.NewPipeline(cfg.Export, logger)
	if pipeline.Enabled() {
		// Export with a fresh context so a Ctrl-C that ended the crawl
		// does not also discard the partial results.
		if err := pipeline.Export(context.Background(), report); err != nil {
			logger.Error("some exports failed", "error", err)
			os.Exit(1)
		}
	}
}
