// Package extract drives a rendered page to reveal lazily-loaded content and
// collects every image reference visible to the page, including ones that
// only exist after script execution.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imagehealth/internal/browser"
	"imagehealth/internal/config"
	"imagehealth/pkg/types"
)

// Lazy-load conventions checked when an img carries no live src.
var fallbackDataAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// Engine collects image references from one navigated page.
type Engine struct {
	idleTimeout time.Duration
	settleDelay time.Duration
	scrollStep  int
	overshoot   float64
	logger      *slog.Logger
}

// New builds an extraction engine from rendering configuration.
func New(cfg config.RenderingConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	step := cfg.ScrollStep
	if step <= 0 {
		step = 100
	}
	overshoot := cfg.ScrollOvershoot
	if overshoot < 1 {
		overshoot = 1.5
	}
	return &Engine{
		idleTimeout: cfg.IdleTimeout.Duration,
		settleDelay: cfg.SettleDelay.Duration,
		scrollStep:  step,
		overshoot:   overshoot,
		logger:      logger,
	}
}

// Images reveals and collects image references from the page the session is
// currently on. Each stage degrades to zero results on failure; the page is
// still considered processed.
func (e *Engine) Images(ctx context.Context, pg browser.Page) []types.ImageRef {
	if err := pg.WaitIdle(ctx, e.idleTimeout); err != nil {
		e.logger.Warn("idle wait failed", "error", err)
	}
	if err := pg.Eval(ctx, e.scrollScript(), nil); err != nil {
		e.logger.Warn("lazy-load scroll failed", "error", err)
	}
	if err := sleep(ctx, e.settleDelay); err != nil {
		return nil
	}

	var refs []types.ImageRef
	seen := make(map[string]struct{})
	add := func(raw string, method types.DiscoveryMethod) {
		raw = strings.TrimSpace(raw)
		if !keepCandidate(raw) {
			return
		}
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}
		refs = append(refs, types.ImageRef{RawURL: raw, Method: method})
	}

	html, err := pg.HTML(ctx)
	if err != nil {
		e.logger.Warn("dom export failed", "error", err)
	} else {
		collectMarkupImages(html, add)
	}

	var backgrounds []string
	if err := pg.Eval(ctx, backgroundScript, &backgrounds); err != nil {
		e.logger.Warn("background image scan failed", "error", err)
	}
	for _, bg := range backgrounds {
		add(bg, types.MethodCSSBackground)
	}

	return refs
}

func collectMarkupImages(html string, add func(string, types.DiscoveryMethod)) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			add(src, types.MethodSrcAttribute)
		} else {
			for _, attr := range fallbackDataAttrs {
				if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
					add(v, types.MethodDataAttribute)
					break
				}
			}
		}
		if srcset, ok := s.Attr("srcset"); ok {
			for _, candidate := range srcsetCandidates(srcset) {
				add(candidate, types.MethodSrcsetEntry)
			}
		}
	})
}

// srcsetCandidates extracts the URL tokens from a srcset value, dropping the
// width/density descriptors.
func srcsetCandidates(srcset string) []string {
	var urls []string
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		urls = append(urls, fields[0])
	}
	return urls
}

// keepCandidate drops references that can never resolve to a checkable
// http(s) URL. Relative references are kept; the resolver handles them.
func keepCandidate(raw string) bool {
	if raw == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"data:", "javascript:", "blob:", "about:", "mailto:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

// scrollScript walks the page in fixed increments, overshooting the document
// height to fire late-registering lazy-load observers and periodically
// scrolling back to re-trigger viewport-based ones.
func (e *Engine) scrollScript() string {
	return fmt.Sprintf(`
new Promise((resolve) => {
	const step = %d;
	const overshoot = %g;
	let total = 0;
	let ticks = 0;
	const timer = setInterval(() => {
		const target = document.body.scrollHeight * overshoot;
		window.scrollBy(0, step);
		total += step;
		ticks++;
		if (ticks %% 10 === 0) {
			window.scrollBy(0, -Math.floor(step / 2));
		}
		if (total >= target || ticks > 1000) {
			clearInterval(timer);
			window.scrollTo(0, 0);
			resolve(true);
		}
	}, 100);
})`, e.scrollStep, e.overshoot)
}

// backgroundScript scans every element's computed style for CSS background
// images and returns the url(...) tokens.
const backgroundScript = `
(() => {
	const images = [];
	document.querySelectorAll('*').forEach((el) => {
		const bg = window.getComputedStyle(el).backgroundImage;
		if (!bg || bg === 'none') {
			return;
		}
		const matches = bg.match(/url\(["']?([^"'\)]+)["']?\)/g);
		if (!matches) {
			return;
		}
		matches.forEach((m) => {
			images.push(m.replace(/url\(["']?([^"'\)]+)["']?\)/, '$1'));
		});
	});
	return images;
})()`

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
