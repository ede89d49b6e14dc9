// Package scope resolves raw URL references against their source page and
// classifies absolute URLs as internal or external to the scanned site.
package scope

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolve joins a possibly-relative reference against the page it was found
// on. It fails closed: references that do not yield an absolute http(s) URL
// (data: URIs, javascript:, mailto:, fragment-only links) are discarded.
func Resolve(base *url.URL, ref string) (*url.URL, bool) {
	if base == nil {
		return nil, false
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return nil, false
	}
	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	default:
		return nil, false
	}
	if resolved.Host == "" {
		return nil, false
	}
	return resolved, true
}

// MatchMode selects the strictness of internal/external host classification.
type MatchMode int

const (
	// MatchContains treats a URL as internal when its host contains the base
	// domain as a substring. This mirrors the historical checker behaviour
	// and can misclassify unrelated hosts that embed the base domain.
	MatchContains MatchMode = iota
	// MatchSuffix requires the host to equal the base domain or end with
	// "." + base domain.
	MatchSuffix
)

// ParseMatchMode converts a configuration value to a MatchMode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contains":
		return MatchContains, nil
	case "suffix":
		return MatchSuffix, nil
	default:
		return MatchContains, fmt.Errorf("unknown internal match mode %q", s)
	}
}

// Classifier decides whether a URL belongs to the scanned site.
type Classifier struct {
	baseDomain string
	mode       MatchMode
}

// NewClassifier builds a classifier for the site identified by base.
func NewClassifier(base *url.URL, mode MatchMode) Classifier {
	domain := ""
	if base != nil {
		domain = strings.ToLower(base.Hostname())
	}
	return Classifier{baseDomain: domain, mode: mode}
}

// IsInternal reports whether the URL is part of the scanned site. URLs with
// no host component (same-origin relative references) are internal.
func (c Classifier) IsInternal(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return true
	}
	if c.baseDomain == "" {
		return false
	}
	switch c.mode {
	case MatchSuffix:
		return host == c.baseDomain || strings.HasSuffix(host, "."+c.baseDomain)
	default:
		return strings.Contains(host, c.baseDomain)
	}
}

// BaseDomain exposes the normalised domain the classifier matches against.
func (c Classifier) BaseDomain() string {
	return c.baseDomain
}
