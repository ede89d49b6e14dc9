// Package browser supplies the narrow rendering capability the scanner
// needs: navigate, wait for readiness, run scripts, and export the rendered
// DOM. The chromedp-backed Session also shares its cookies with a plain
// http.Client so image checks ride the same site session as the renderer.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/publicsuffix"
)

// Page is the rendering surface consumed by the discovery and extraction
// engines. Any headless-browser provider implementing it is substitutable.
type Page interface {
	// Navigate loads the URL and blocks until the initial load completes or
	// the session's navigation timeout elapses.
	Navigate(ctx context.Context, url string) error
	// WaitIdle waits for the document to settle, best-effort: a timeout is
	// not an error.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	// Eval runs a script in page context and unmarshals its (possibly
	// awaited) result into out. A nil out discards the result.
	Eval(ctx context.Context, script string, out any) error
	// HTML returns the current outer HTML of the document.
	HTML(ctx context.Context) (string, error)
}

// Options configures a browser session.
type Options struct {
	UserAgent         string
	DisableHeadless   bool
	NavigationTimeout time.Duration
	RequestTimeout    time.Duration
}

// Session is a single headless Chrome session reused for an entire run.
type Session struct {
	opts Options

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	client *http.Client
	jar    *cookiejar.Jar

	logger *slog.Logger
}

// NewSession starts a headless Chrome instance bound to the parent context.
func NewSession(parent context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 12 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	headless := !opts.DisableHeadless
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Launch the browser eagerly so a missing binary fails the run up front.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	client := &http.Client{
		Jar:     jar,
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return &Session{
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		client:      client,
		jar:         jar,
		logger:      logger,
	}, nil
}

// Navigate loads the URL in the session tab.
func (s *Session) Navigate(ctx context.Context, target string) error {
	tctx, cancel := s.opTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.Navigate(target)); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	return nil
}

// WaitIdle polls document.readyState until the document is complete. A
// timeout degrades to success; extraction proceeds with whatever loaded.
func (s *Session) WaitIdle(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opts.NavigationTimeout
	}
	tctx, cancel := s.opTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var readyState string
		if err := chromedp.Run(tctx, chromedp.Evaluate(`document.readyState`, &readyState)); err != nil {
			if tctx.Err() != nil {
				s.logger.Debug("wait idle timed out, proceeding", "error", tctx.Err())
				return nil
			}
			return fmt.Errorf("readiness poll: %w", err)
		}
		if readyState == "complete" {
			return nil
		}
		select {
		case <-ticker.C:
		case <-tctx.Done():
			s.logger.Debug("wait idle timed out, proceeding")
			return nil
		}
	}
}

// Eval runs the script in page context, awaiting promises.
func (s *Session) Eval(ctx context.Context, script string, out any) error {
	if out == nil {
		out = new(json.RawMessage)
	}
	tctx, cancel := s.opTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Evaluate(script, out, awaitPromise))
}

// HTML exports the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	tctx, cancel := s.opTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(tctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Client returns the HTTP client that shares the session's cookies.
func (s *Session) Client() *http.Client {
	return s.client
}

// SyncCookies copies the browser's current cookies into the shared client's
// jar so direct image requests carry the same site session.
func (s *Session) SyncCookies(ctx context.Context) error {
	tctx, cancel := s.opTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(tctx, chromedp.ActionFunc(func(actionCtx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(actionCtx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("export cookies: %w", err)
	}

	for _, c := range cookies {
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		cookieURL := &url.URL{Scheme: scheme, Host: host, Path: c.Path}
		s.jar.SetCookies(cookieURL, []*http.Cookie{{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
			Secure: c.Secure,
		}})
	}
	s.logger.Debug("session cookies synced", "count", len(cookies))
	return nil
}

// Close tears down the browser session.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// opTimeout bounds a browser operation with both the caller's context and
// the configured timeout. chromedp actions must run on a context derived
// from the tab context, so the caller's is only watched for cancellation.
func (s *Session) opTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.tabCtx, d)
	if ctx == nil {
		return tctx, cancel
	}
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

var _ Page = (*Session)(nil)
