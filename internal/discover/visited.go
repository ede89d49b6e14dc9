package discover

import (
	"net/url"
	"strings"
	"sync"
)

// visited is the write-once set of page URLs the traversal has entered.
type visited struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newVisited() *visited {
	return &visited{keys: make(map[string]struct{})}
}

// add records the URL and reports whether it was new.
func (v *visited) add(u *url.URL) bool {
	key := canonicalKey(u)
	if key == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, seen := v.keys[key]; seen {
		return false
	}
	v.keys[key] = struct{}{}
	return true
}

func (v *visited) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.keys)
}

// canonicalKey normalises a URL for dedup purposes: lowercased scheme and
// host, default ports stripped, fragment ignored.
func canonicalKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortForScheme(scheme) {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	key := scheme + "://" + host + path
	if q := u.RawQuery; q != "" {
		key += "?" + q
	}
	return key
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// pageSet accumulates the ordered, deduplicated discovery result, bounded by
// the page cap.
type pageSet struct {
	cap     int
	seen    map[string]struct{}
	ordered []*url.URL
}

func newPageSet(cap int) *pageSet {
	return &pageSet{cap: cap, seen: make(map[string]struct{})}
}

func (p *pageSet) add(u *url.URL) bool {
	if p.full() {
		return false
	}
	key := canonicalKey(u)
	if key == "" {
		return false
	}
	if _, dup := p.seen[key]; dup {
		return false
	}
	p.seen[key] = struct{}{}
	p.ordered = append(p.ordered, u)
	return true
}

func (p *pageSet) full() bool {
	return len(p.ordered) >= p.cap
}

func (p *pageSet) len() int {
	return len(p.ordered)
}
