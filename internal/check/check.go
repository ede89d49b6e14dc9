// Package check resolves the reachability of image URLs. Results are
// memoized per run: an image URL is checked over the network at most once,
// and every later occurrence reuses the stored result unchanged.
package check

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"imagehealth/internal/config"
	"imagehealth/pkg/types"
)

// Checker issues direct image requests over the session-shared HTTP client.
type Checker struct {
	client    *http.Client
	cache     Memo
	userAgent string
	timeout   time.Duration
	maxSniff  int64
	limiter   *hostLimiter
	logger    *slog.Logger
}

// New builds a checker. The client should share cookies with the rendering
// session so checks see the same site state the browser does.
func New(client *http.Client, cache Memo, cfg config.CheckConfig, userAgent string, logger *slog.Logger) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if cache == nil {
		cache = NewRunCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	maxSniff := cfg.MaxSniffBytes
	if maxSniff <= 0 {
		maxSniff = 512
	}
	return &Checker{
		client:    client,
		cache:     cache,
		userAgent: userAgent,
		timeout:   timeout,
		maxSniff:  maxSniff,
		limiter:   newHostLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration),
		logger:    logger,
	}
}

// Check returns the memoized result for the absolute URL, fetching it on
// first sight. Failures classify as CONNECTION_ERROR and are never retried.
func (c *Checker) Check(ctx context.Context, absoluteURL string) types.CheckResult {
	return c.cache.Do(absoluteURL, func() types.CheckResult {
		return c.fetch(ctx, absoluteURL)
	})
}

// Unique reports how many distinct URLs have been checked so far.
func (c *Checker) Unique() int {
	return c.cache.Len()
}

func (c *Checker) fetch(ctx context.Context, absoluteURL string) types.CheckResult {
	connectionError := func(err error) types.CheckResult {
		c.logger.Debug("image request failed", "url", absoluteURL, "error", err)
		return types.CheckResult{
			StatusCode:     0,
			Classification: types.StatusConnectionError,
			CheckedAt:      time.Now(),
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, absoluteURL, nil)
	if err != nil {
		return connectionError(err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	if err := c.limiter.Wait(reqCtx, req.URL.Hostname()); err != nil {
		return connectionError(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return connectionError(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxSniff))
		_ = resp.Body.Close()
	}()

	code := resp.StatusCode
	classification := types.Classify(code)
	if code == http.StatusOK && !c.looksLikeImage(resp) {
		// Soft 404: an HTML (or other non-binary) page served with 200
		// where an image should be.
		classification = types.StatusNotFound
	}

	return types.CheckResult{
		StatusCode:     code,
		Classification: classification,
		CheckedAt:      time.Now(),
	}
}

// looksLikeImage inspects the response's declared content type, falling back
// to sniffing the first bytes of the (decoded) body when the header is
// missing or malformed.
func (c *Checker) looksLikeImage(resp *http.Response) bool {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return isImageMediaType(mediaType)
		}
	}

	reader := io.Reader(resp.Body)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return false
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	head, err := io.ReadAll(io.LimitReader(reader, c.maxSniff))
	if err != nil || len(head) == 0 {
		return false
	}
	return isImageMediaType(http.DetectContentType(head))
}

func isImageMediaType(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	if strings.HasPrefix(mediaType, "image/") {
		return true
	}
	// Some origins serve image binaries as opaque octet streams.
	return strings.HasPrefix(mediaType, "application/octet-stream")
}
