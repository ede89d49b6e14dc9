// Package discover traverses a site's page graph to build the bounded,
// ordered set of content pages to check. It follows pagination links and
// drives incremental-reveal ("load more") controls, with explicit depth,
// page, and click caps guaranteeing termination on open-ended sites.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imagehealth/internal/browser"
	"imagehealth/internal/scope"
	"imagehealth/pkg/types"
)

// Selectors for classic pagination controls and load-more conventions.
const (
	paginationSelector = `a[rel="next"], a.page-numbers, .pagination a`
	loadMoreSelector   = `button.load-more, a.load-more, .loadmore`
)

var yearToken = regexp.MustCompile(`20\d{2}`)

// Options bounds the traversal.
type Options struct {
	MaxDepth          int
	MaxPages          int
	MaxLoadMoreClicks int
	ContentKeywords   []string
	LoadMoreWait      time.Duration
	IdleTimeout       time.Duration
}

// Engine performs page discovery over one browser session.
type Engine struct {
	page       browser.Page
	classifier scope.Classifier
	opts       Options
	logger     *slog.Logger
}

// New builds a discovery engine.
func New(pg browser.Page, classifier scope.Classifier, opts Options, logger *slog.Logger) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	if len(opts.ContentKeywords) == 0 {
		opts.ContentKeywords = []string{"article", "post", "blog"}
	}
	if opts.LoadMoreWait <= 0 {
		opts.LoadMoreWait = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{page: pg, classifier: classifier, opts: opts, logger: logger}
}

// Run traverses the page graph from start and returns the ordered content
// page set. The start URL is always included, so the result is never empty;
// per-branch failures are logged and abandoned.
func (e *Engine) Run(ctx context.Context, start *url.URL, progress types.ProgressFunc) []*url.URL {
	pages := newPageSet(e.opts.MaxPages)
	seen := newVisited()
	pages.add(start)

	frontier := []types.PageNode{{URL: start, Depth: 0}}
	for len(frontier) > 0 {
		if ctx.Err() != nil {
			break
		}
		node := frontier[0]
		frontier = frontier[1:]

		if node.Depth > e.opts.MaxDepth {
			continue
		}
		// The page cap bounds both the content set and the visited count.
		if pages.full() || seen.len() >= e.opts.MaxPages {
			break
		}
		if !seen.add(node.URL) {
			continue
		}
		progress.Report(types.PhaseDiscovering,
			fmt.Sprintf("Discovering pages... found %d so far (visited %d)", pages.len(), seen.len()),
			float64(pages.len())/float64(e.opts.MaxPages))

		anchors, pagination, err := e.expandPage(ctx, node.URL)
		if err != nil {
			e.logger.Warn("discovery navigation failed, abandoning branch",
				"url", node.URL.String(), "error", err)
			continue
		}

		for _, link := range anchors {
			if pages.full() {
				break
			}
			if e.isContentLink(link) {
				pages.add(link)
			}
		}
		for _, next := range pagination {
			if len(frontier) >= e.opts.MaxPages {
				break
			}
			frontier = append(frontier, types.PageNode{URL: next, Depth: node.Depth + 1})
		}
	}

	return pages.ordered
}

// expandPage navigates to the page, reveals incremental content, and returns
// the internal anchor targets and pagination targets it accumulated.
func (e *Engine) expandPage(ctx context.Context, pageURL *url.URL) (anchors, pagination []*url.URL, err error) {
	if err := e.page.Navigate(ctx, pageURL.String()); err != nil {
		return nil, nil, err
	}
	if err := e.page.WaitIdle(ctx, e.opts.IdleTimeout); err != nil {
		e.logger.Debug("idle wait failed during discovery", "url", pageURL.String(), "error", err)
	}
	if err := e.page.Eval(ctx, scrollToBottomScript, nil); err != nil {
		e.logger.Debug("scroll to bottom failed", "url", pageURL.String(), "error", err)
	}

	anchorSeen := make(map[string]struct{})
	paginationSeen := make(map[string]struct{})
	collect := func() {
		html, err := e.page.HTML(ctx)
		if err != nil {
			e.logger.Debug("dom export failed during discovery", "url", pageURL.String(), "error", err)
			return
		}
		a, p := e.collectLinks(html, pageURL)
		anchors = mergeLinks(anchors, a, anchorSeen)
		pagination = mergeLinks(pagination, p, paginationSeen)
	}

	collect()

	// Incremental-reveal traversal: click visible load-more controls until
	// none remain or the click cap is hit.
	for clicks := 0; clicks < e.opts.MaxLoadMoreClicks; clicks++ {
		var clicked bool
		if err := e.page.Eval(ctx, loadMoreScript, &clicked); err != nil {
			e.logger.Debug("load-more probe failed", "url", pageURL.String(), "error", err)
			break
		}
		if !clicked {
			break
		}
		if err := sleep(ctx, e.opts.LoadMoreWait); err != nil {
			break
		}
		collect()
	}

	return anchors, pagination, nil
}

// collectLinks parses the rendered DOM for anchor and pagination targets,
// resolved against the page and filtered to the site's domain.
func (e *Engine) collectLinks(html string, base *url.URL) (anchors, pagination []*url.URL) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}

	keep := func(href string) *url.URL {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return nil
		}
		resolved, ok := scope.Resolve(base, href)
		if !ok {
			return nil
		}
		resolved.Fragment = ""
		if !e.classifier.IsInternal(resolved) {
			return nil
		}
		return resolved
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if u := keep(href); u != nil {
			anchors = append(anchors, u)
		}
	})
	doc.Find(paginationSelector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if u := keep(href); u != nil {
			pagination = append(pagination, u)
		}
	})
	return anchors, pagination
}

// isContentLink applies the content-page heuristic: a path segment keyword
// or a year token.
func (e *Engine) isContentLink(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, keyword := range e.opts.ContentKeywords {
		if strings.Contains(path, keyword) {
			return true
		}
	}
	return yearToken.MatchString(path)
}

func mergeLinks(dst, src []*url.URL, seen map[string]struct{}) []*url.URL {
	for _, u := range src {
		key := canonicalKey(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, u)
	}
	return dst
}

const scrollToBottomScript = `window.scrollTo(0, document.body.scrollHeight); true`

// loadMoreScript clicks the first visible load-more control and reports
// whether a click happened.
var loadMoreScript = `
(() => {
	const el = document.querySelector('` + loadMoreSelector + `');
	if (!el) {
		return false;
	}
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	if (style.display === 'none' || style.visibility === 'hidden' || rect.width === 0 || rect.height === 0) {
		return false;
	}
	el.scrollIntoView();
	el.click();
	return true;
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
