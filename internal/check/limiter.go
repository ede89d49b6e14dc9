package check

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter applies a token bucket per image host so a page full of
// same-host images does not hammer one server.
type hostLimiter struct {
	interval time.Duration
	burst    int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newHostLimiter returns nil when rate limiting is disabled.
func newHostLimiter(requests int, window time.Duration) *hostLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	interval := window / time.Duration(requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &hostLimiter{
		interval: interval,
		burst:    requests,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host's bucket permits another request.
func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.interval), h.burst)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
