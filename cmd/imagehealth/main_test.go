package main

import (
	"flag"
	"io"
	"testing"

	"imagehealth/internal/config"
)

func parseInto(t *testing.T, args ...string) (*flag.FlagSet, *cliOptions) {
	t.Helper()
	fs := flag.NewFlagSet("imagehealth", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var opts cliOptions
	registerFlags(fs, &opts)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return fs, &opts
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.Default()
	fs, opts := parseInto(t,
		"-url", "https://example.com",
		"-max-pages", "7",
		"-csv", "out.csv",
		"-xlsx", "out.xlsx",
	)

	applyFlagOverrides(&cfg, fs, opts)

	if cfg.Crawl.BaseURL != "https://example.com" {
		t.Errorf("base url = %q", cfg.Crawl.BaseURL)
	}
	if cfg.Crawl.MaxPages != 7 {
		t.Errorf("max pages = %d", cfg.Crawl.MaxPages)
	}
	if cfg.Export.CSVPath != "out.csv" || cfg.Export.XLSXPath != "out.xlsx" {
		t.Errorf("export paths = %q, %q", cfg.Export.CSVPath, cfg.Export.XLSXPath)
	}
}

func TestIncludeExternalOverridesBothWays(t *testing.T) {
	// Explicit false must win over a config file that enabled it.
	cfg := config.Default()
	cfg.Crawl.IncludeExternal = true
	fs, opts := parseInto(t, "-include-external=false")
	applyFlagOverrides(&cfg, fs, opts)
	if cfg.Crawl.IncludeExternal {
		t.Error("explicit -include-external=false did not override config")
	}

	cfg = config.Default()
	fs, opts = parseInto(t, "-include-external")
	applyFlagOverrides(&cfg, fs, opts)
	if !cfg.Crawl.IncludeExternal {
		t.Error("-include-external did not enable the option")
	}
}

func TestIncludeExternalUntouchedWhenFlagAbsent(t *testing.T) {
	cfg := config.Default()
	cfg.Crawl.IncludeExternal = true
	fs, opts := parseInto(t)
	applyFlagOverrides(&cfg, fs, opts)
	if !cfg.Crawl.IncludeExternal {
		t.Error("config value clobbered by an unpassed flag")
	}
}
