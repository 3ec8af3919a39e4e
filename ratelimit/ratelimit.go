// Package ratelimit implements the gateway's per-client fixed-window request
// limiter. State is process-local: horizontally scaled instances enforce
// independent limits.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxRequests = 100
	defaultWindow      = time.Minute
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed bool
	// RetryAfter is the whole number of seconds until the window resets,
	// rounded up. Zero when the request is allowed.
	RetryAfter int
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// Limiter is a fixed-window per-key counter. Each instance owns its own
// window map; construct one per gateway so tests stay isolated.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*windowEntry
}

// Option configures a Limiter.
type Option func(*Limiter) error

// WithLimit sets the maximum requests allowed per window.
func WithLimit(maxRequests int) Option {
	return func(l *Limiter) error {
		if maxRequests <= 0 {
			return fmt.Errorf("request limit must be positive")
		}
		l.maxRequests = maxRequests
		return nil
	}
}

// WithWindow sets the window duration.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) error {
		if d <= 0 {
			return fmt.Errorf("window must be positive")
		}
		l.window = d
		return nil
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		l.now = now
		return nil
	}
}

// New builds a Limiter. Defaults: 100 requests per minute.
func New(opts ...Option) (*Limiter, error) {
	l := &Limiter{
		maxRequests: defaultMaxRequests,
		window:      defaultWindow,
		now:         time.Now,
		entries:     make(map[string]*windowEntry),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return l, nil
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int { return l.maxRequests }

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }

// Check counts a request for clientKey and reports whether it is allowed.
// The counter increments on every call, including rejected ones; a client
// hammering a closed window does not advance it.
func (l *Limiter) Check(clientKey string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(now)

	e, ok := l.entries[clientKey]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.entries[clientKey] = &windowEntry{count: 1, windowStart: now}
		return Result{Allowed: true}
	}

	e.count++
	if e.count > l.maxRequests {
		remaining := l.window - now.Sub(e.windowStart)
		retryAfter := int(math.Ceil(remaining.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{Allowed: false, RetryAfter: retryAfter}
	}

	return Result{Allowed: true}
}

// purgeLocked drops entries whose window has fully elapsed. Called on every
// check with the lock held; the map stays bounded by the set of keys active
// within one window.
func (l *Limiter) purgeLocked(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window {
			delete(l.entries, key)
		}
	}
}

// ClientKey derives the rate-limit bucket key for a request. The first
// (leftmost) X-Forwarded-For address wins over the socket address because the
// gateway expects to sit behind a reverse proxy; trusting that header is a
// deployment decision, not something the limiter can enforce.
func ClientKey(remoteAddr string, headers http.Header) string {
	if xff := headers.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(headers.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
