package discover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"imagehealth/internal/scope"
	"imagehealth/pkg/types"
)

// fakeSite serves canned HTML snapshots per URL; a load-more click advances
// to the next snapshot for the current page.
type fakeSite struct {
	htmlByURL map[string][]string
	navErr    map[string]error
	loadMore  map[string]int

	current  string
	snapshot int
	clicks   int
	probes   int
	navs     int
}

func (f *fakeSite) Navigate(ctx context.Context, u string) error {
	f.navs++
	if err := f.navErr[u]; err != nil {
		return err
	}
	f.current = u
	f.snapshot = 0
	return nil
}

func (f *fakeSite) WaitIdle(ctx context.Context, timeout time.Duration) error { return nil }

func (f *fakeSite) Eval(ctx context.Context, script string, out any) error {
	if out == nil {
		return nil
	}
	if clicked, ok := out.(*bool); ok {
		f.probes++
		if f.loadMore[f.current] > 0 {
			f.loadMore[f.current]--
			f.clicks++
			f.snapshot++
			*clicked = true
		} else {
			*clicked = false
		}
	}
	return nil
}

func (f *fakeSite) HTML(ctx context.Context) (string, error) {
	snaps := f.htmlByURL[f.current]
	if len(snaps) == 0 {
		return "<html><body></body></html>", nil
	}
	idx := f.snapshot
	if idx >= len(snaps) {
		idx = len(snaps) - 1
	}
	return snaps[idx], nil
}

func newTestEngine(t *testing.T, site *fakeSite, opts Options) *Engine {
	t.Helper()
	base, err := url.Parse("https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	cls := scope.NewClassifier(base, scope.MatchSuffix)
	if opts.LoadMoreWait == 0 {
		opts.LoadMoreWait = time.Millisecond
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(site, cls, opts, logger)
}

func run(t *testing.T, e *Engine, start string) []string {
	t.Helper()
	u, err := url.Parse(start)
	if err != nil {
		t.Fatal(err)
	}
	pages := e.Run(context.Background(), u, nil)
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.String())
	}
	return out
}

func anchorList(hrefs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&sb, `<a href=%q>link</a>`, h)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func TestRunRespectsPageCap(t *testing.T) {
	links := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		links = append(links, fmt.Sprintf("/blog/post-%d", i))
	}
	site := &fakeSite{htmlByURL: map[string][]string{
		"https://example.com": {anchorList(links...)},
	}}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 10}), "https://example.com")

	if len(pages) != 10 {
		t.Fatalf("got %d pages, want 10", len(pages))
	}
	if pages[0] != "https://example.com" {
		t.Fatalf("start URL must come first, got %q", pages[0])
	}
}

func TestRunVisitedCountBoundedByPageCap(t *testing.T) {
	// A long pagination chain with no content links: the content set stays
	// at just the start URL, so only the visited bound can stop traversal.
	htmlByURL := map[string][]string{
		"https://example.com": {`<html><body><a rel="next" href="/page/1">next</a></body></html>`},
	}
	for i := 1; i <= 30; i++ {
		htmlByURL[fmt.Sprintf("https://example.com/page/%d", i)] = []string{
			fmt.Sprintf(`<html><body><a rel="next" href="/page/%d">next</a></body></html>`, i+1),
		}
	}
	site := &fakeSite{htmlByURL: htmlByURL}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 5, MaxDepth: 100}), "https://example.com")

	if site.navs > 5 {
		t.Fatalf("navigated %d pages, want at most the cap of 5", site.navs)
	}
	if len(pages) != 1 || pages[0] != "https://example.com" {
		t.Fatalf("got %v, want just the start URL", pages)
	}
}

func TestRunFollowsPagination(t *testing.T) {
	site := &fakeSite{htmlByURL: map[string][]string{
		"https://example.com": {anchorList("/blog/one") +
			`<a rel="next" href="/page/2">next</a>`},
		"https://example.com/page/2": {anchorList("/blog/two")},
	}}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 10}), "https://example.com")

	want := map[string]bool{
		"https://example.com":          true,
		"https://example.com/blog/one": true,
		"https://example.com/blog/two": true,
	}
	if len(pages) != len(want) {
		t.Fatalf("got pages %v, want %d entries", pages, len(want))
	}
	for _, p := range pages {
		if !want[p] {
			t.Errorf("unexpected page %q", p)
		}
	}
}

func TestRunProgressFractionTracksPageCap(t *testing.T) {
	site := &fakeSite{htmlByURL: map[string][]string{
		"https://example.com": {anchorList("/blog/one") +
			`<a rel="next" href="/page/2">next</a>`},
		"https://example.com/page/2": {anchorList("/blog/two")},
	}}
	e := newTestEngine(t, site, Options{MaxPages: 4})
	start, err := url.Parse("https://example.com")
	if err != nil {
		t.Fatal(err)
	}

	var fractions []float64
	e.Run(context.Background(), start, func(_ types.Phase, _ string, fraction float64) {
		fractions = append(fractions, fraction)
	})

	// One report per expanded page: the start URL alone, then start plus
	// blog/one once pagination is followed.
	want := []float64{0.25, 0.5}
	if len(fractions) != len(want) {
		t.Fatalf("got fractions %v, want %v", fractions, want)
	}
	for i := range want {
		if fractions[i] != want[i] {
			t.Errorf("fraction %d = %g, want %g", i, fractions[i], want[i])
		}
	}
}

func TestRunDepthBound(t *testing.T) {
	htmlByURL := map[string][]string{
		"https://example.com": {anchorList("/blog/d0") + `<a rel="next" href="/page/1">next</a>`},
	}
	for i := 1; i <= 6; i++ {
		htmlByURL[fmt.Sprintf("https://example.com/page/%d", i)] = []string{
			anchorList(fmt.Sprintf("/blog/d%d", i)) +
				fmt.Sprintf(`<a rel="next" href="/page/%d">next</a>`, i+1),
		}
	}
	site := &fakeSite{htmlByURL: htmlByURL}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 100, MaxDepth: 2}), "https://example.com")

	// Depths 0..2 are visited, so articles d0..d2 are collected and d3+ never seen.
	for _, p := range pages {
		if strings.Contains(p, "/blog/d3") || strings.Contains(p, "/blog/d4") {
			t.Fatalf("page beyond depth bound collected: %q", p)
		}
	}
	found := map[string]bool{}
	for _, p := range pages {
		found[p] = true
	}
	for i := 0; i <= 2; i++ {
		want := fmt.Sprintf("https://example.com/blog/d%d", i)
		if !found[want] {
			t.Errorf("missing %q within depth bound (got %v)", want, pages)
		}
	}
}

func TestRunZeroClicksWithoutControl(t *testing.T) {
	site := &fakeSite{htmlByURL: map[string][]string{
		"https://example.com": {anchorList("/blog/one")},
	}}

	run(t, newTestEngine(t, site, Options{MaxPages: 10, MaxLoadMoreClicks: 20}), "https://example.com")

	if site.clicks != 0 {
		t.Fatalf("performed %d clicks, want 0", site.clicks)
	}
	if site.probes != 1 {
		t.Fatalf("probed %d times, want exactly 1", site.probes)
	}
}

func TestRunLoadMoreRevealsLinks(t *testing.T) {
	site := &fakeSite{
		htmlByURL: map[string][]string{
			"https://example.com": {
				anchorList("/blog/one"),
				anchorList("/blog/one", "/blog/two"),
			},
		},
		loadMore: map[string]int{"https://example.com": 1},
	}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 10, MaxLoadMoreClicks: 20}), "https://example.com")

	found := map[string]bool{}
	for _, p := range pages {
		found[p] = true
	}
	if !found["https://example.com/blog/two"] {
		t.Fatalf("load-more revealed link missing, got %v", pages)
	}
	if site.clicks != 1 {
		t.Fatalf("performed %d clicks, want 1", site.clicks)
	}
}

func TestRunClickCapTerminates(t *testing.T) {
	site := &fakeSite{
		htmlByURL: map[string][]string{
			"https://example.com": {anchorList("/blog/one")},
		},
		// Control never disappears.
		loadMore: map[string]int{"https://example.com": 1 << 20},
	}

	run(t, newTestEngine(t, site, Options{MaxPages: 10, MaxLoadMoreClicks: 3}), "https://example.com")

	if site.clicks != 3 {
		t.Fatalf("performed %d clicks, want exactly the cap of 3", site.clicks)
	}
}

func TestRunStartURLFallbackOnFailure(t *testing.T) {
	site := &fakeSite{
		navErr: map[string]error{"https://example.com": errors.New("timeout")},
	}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 10}), "https://example.com")

	if len(pages) != 1 || pages[0] != "https://example.com" {
		t.Fatalf("got %v, want just the start URL", pages)
	}
}

func TestRunFailedBranchAbandoned(t *testing.T) {
	site := &fakeSite{
		htmlByURL: map[string][]string{
			"https://example.com": {anchorList("/blog/one") +
				`<a rel="next" href="/page/2">next</a><a rel="next" href="/page/3">next</a>`},
			"https://example.com/page/3": {anchorList("/blog/three")},
		},
		navErr: map[string]error{"https://example.com/page/2": errors.New("boom")},
	}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 10}), "https://example.com")

	found := map[string]bool{}
	for _, p := range pages {
		found[p] = true
	}
	if !found["https://example.com/blog/one"] || !found["https://example.com/blog/three"] {
		t.Fatalf("surviving branches missing from %v", pages)
	}
}

func TestRunFiltersExternalAndNonContent(t *testing.T) {
	site := &fakeSite{htmlByURL: map[string][]string{
		"https://example.com": {anchorList(
			"/blog/keep-me",
			"/about",
			"https://other.net/blog/nope",
			"/archive/2024/story",
			"mailto:x@y.z",
			"javascript:void(0)",
		)},
	}}

	pages := run(t, newTestEngine(t, site, Options{MaxPages: 10}), "https://example.com")

	found := map[string]bool{}
	for _, p := range pages {
		found[p] = true
	}
	if !found["https://example.com/blog/keep-me"] {
		t.Errorf("keyword link missing from %v", pages)
	}
	if !found["https://example.com/archive/2024/story"] {
		t.Errorf("year-token link missing from %v", pages)
	}
	if found["https://example.com/about"] {
		t.Error("non-content link collected")
	}
	if found["https://other.net/blog/nope"] {
		t.Error("external link collected")
	}
	if len(pages) != 3 {
		t.Fatalf("got %v, want start + 2 content pages", pages)
	}
}
