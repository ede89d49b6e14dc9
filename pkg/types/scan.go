package types

import (
	"fmt"
	"net/url"
	"time"
)

// DiscoveryMethod records where in the page an image reference was found.
type DiscoveryMethod string

const (
	MethodSrcAttribute  DiscoveryMethod = "src-attribute"
	MethodDataAttribute DiscoveryMethod = "fallback-data-attribute"
	MethodSrcsetEntry   DiscoveryMethod = "srcset-candidate"
	MethodCSSBackground DiscoveryMethod = "css-background"
)

// ImageRef is a raw image reference as it appeared in the rendered page,
// before resolution against the page URL.
type ImageRef struct {
	RawURL string
	Method DiscoveryMethod
}

// Classification labels the outcome of a reachability check.
type Classification string

const (
	StatusOK              Classification = "OK"
	StatusNotFound        Classification = "NOT_FOUND"
	StatusForbidden       Classification = "FORBIDDEN"
	StatusConnectionError Classification = "CONNECTION_ERROR"
)

// Classify maps an HTTP status code to its label. Code 0 is the synthetic
// sentinel for transport failures and timeouts.
func Classify(code int) Classification {
	switch code {
	case 200:
		return StatusOK
	case 404:
		return StatusNotFound
	case 403:
		return StatusForbidden
	case 0:
		return StatusConnectionError
	default:
		return Classification(fmt.Sprintf("ERROR(%d)", code))
	}
}

// CheckResult is the memoized outcome of checking one absolute image URL.
// Immutable after creation; reused for every later occurrence of the URL
// within the same run.
type CheckResult struct {
	StatusCode     int
	Classification Classification
	CheckedAt      time.Time
}

// ResultRow is one line of the final report, in page-processing order.
type ResultRow struct {
	PageURL        string
	ImageURL       string
	StatusCode     int
	Classification Classification
	CheckedAt      time.Time
}

// ResultColumns are the header labels used by every export adapter.
var ResultColumns = []string{"Page URL", "Image URL", "Status Code", "Status", "Checked At"}

// Strings renders the row in export column order.
func (r ResultRow) Strings() []string {
	return []string{
		r.PageURL,
		r.ImageURL,
		fmt.Sprintf("%d", r.StatusCode),
		string(r.Classification),
		r.CheckedAt.Format("2006-01-02 15:04:05"),
	}
}

// Report is the ordered result set for one run.
type Report struct {
	RunID        string
	BaseURL      string
	Rows         []ResultRow
	PagesCrawled int
	StartedAt    time.Time
	Elapsed      time.Duration
}

// Summary holds the aggregate counts shown at the end of a run.
type Summary struct {
	TotalImages int
	Working     int
	Broken      int
	SuccessRate float64
}

// Summary computes aggregate counts over the report rows.
func (r *Report) Summary() Summary {
	s := Summary{TotalImages: len(r.Rows)}
	for _, row := range r.Rows {
		if row.StatusCode == 200 && row.Classification == StatusOK {
			s.Working++
		} else {
			s.Broken++
		}
	}
	if s.TotalImages > 0 {
		s.SuccessRate = float64(s.Working) / float64(s.TotalImages) * 100
	}
	return s
}

// Phase identifies the orchestrator's position in the run state machine.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseChecking    Phase = "checking"
	PhaseDone        Phase = "done"
)

// ProgressFunc receives human-readable progress updates. Implementations must
// not block; the crawler calls it inline. A nil ProgressFunc is valid.
type ProgressFunc func(phase Phase, message string, fraction float64)

// Report calls the function if non-nil.
func (f ProgressFunc) Report(phase Phase, message string, fraction float64) {
	if f != nil {
		f(phase, message, fraction)
	}
}

// PageNode is a frontier entry during discovery.
type PageNode struct {
	URL   *url.URL
	Depth int
}
