package worker

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests per endpoint host. A host that answered with a
// rate-limit error can be paused for every caller at once.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*hostLimit
	rps   rate.Limit
	burst int
	now   func() time.Time
}

type hostLimit struct {
	tokens      *rate.Limiter
	pausedUntil time.Time
}

// NewLimiter allows requestsPerSecond per host with the given burst.
// requestsPerSecond <= 0 disables pacing; pauses still apply.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	rps := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		rps = rate.Inf
	}
	return &Limiter{
		hosts: make(map[string]*hostLimit),
		rps:   rps,
		burst: burst,
		now:   time.Now,
	}
}

// Wait blocks until key is out of any pause and a token is available
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if d := l.PausedFor(key); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.host(key).tokens.Wait(ctx)
}

// Pause holds back requests to key for d. Overlapping pauses extend to the
// latest deadline and never shorten an earlier one.
func (l *Limiter) Pause(key string, d time.Duration) {
	if d <= 0 {
		return
	}
	h := l.host(key)
	until := l.now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(h.pausedUntil) {
		h.pausedUntil = until
	}
}

// PausedFor reports the remaining pause for key
func (l *Limiter) PausedFor(key string) time.Duration {
	h := l.host(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	if d := h.pausedUntil.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

func (l *Limiter) host(key string) *hostLimit {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.hosts[key]
	if !ok {
		h = &hostLimit{tokens: rate.NewLimiter(l.rps, l.burst)}
		l.hosts[key] = h
	}
	return h
}

// EndpointKey names the host an endpoint URL points at, lower-cased with its
// port. Unparseable input is used as is.
func EndpointKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Host)
}
