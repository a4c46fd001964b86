// Package ratelimit provides the fixed-window rate limiter used by the gateway.
//
// A Limiter counts requests per key in a store.Store and denies every request
// past the limit until the window closes. Windows are fixed, not sliding: a burst
// straddling a boundary can pass up to twice the limit.
//
//	st := store.NewMemory()
//	defer st.Close()
//	limiter := ratelimit.New(st, 50, time.Minute, keyFn)
//	r.Use(limiter.Handler)
//
// The key function decides what is limited. Returning an empty string skips
// limiting for that request.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/abuimran/farmgate/ratelimit/store"
)

// HeaderMode controls when rate limit headers are included in responses.
type HeaderMode int

const (
	// HeadersNever never includes rate limit headers (default).
	HeadersNever HeaderMode = iota

	// HeadersOnLimitExceeded includes rate limit headers only on 429 responses.
	// Headers on 429: RateLimit-Limit, RateLimit-Remaining, RateLimit-Reset, Retry-After
	HeadersOnLimitExceeded

	// HeadersAlways includes rate limit headers on all limited responses.
	// On 429: Also includes Retry-After
	HeadersAlways
)

// ParseHeaderMode maps the config spelling ("never", "on_limit", "always") to a HeaderMode.
func ParseHeaderMode(s string) (HeaderMode, bool) {
	switch s {
	case "", "never":
		return HeadersNever, true
	case "on_limit":
		return HeadersOnLimitExceeded, true
	case "always":
		return HeadersAlways, true
	}
	return HeadersNever, false
}

// DeniedBody is the plain-text body written with every 429.
const DeniedBody = "Too Many Requests"

// KeyFunc extracts a rate limiting key from an HTTP request.
// Returning an empty string skips rate limiting for that request.
type KeyFunc func(*http.Request) string

// Decision is the outcome of one checkAndRecord step.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	Remaining  int64
	ResetAfter time.Duration
}

// Limiter implements rate limiting middleware.
type Limiter struct {
	store      store.Store
	limit      int64
	window     time.Duration
	keyFn      KeyFunc
	headerMode HeaderMode
	onLimit    func(r *http.Request, key string, d Decision)
	onDecision func(r *http.Request, key string, d Decision)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithHeaderMode configures when rate limit headers are included in responses.
func WithHeaderMode(mode HeaderMode) Option {
	return func(l *Limiter) {
		l.headerMode = mode
	}
}

// WithOnLimit registers a hook run just before a 429 is written.
func WithOnLimit(fn func(r *http.Request, key string, d Decision)) Option {
	return func(l *Limiter) {
		l.onLimit = fn
	}
}

// WithOnDecision registers a hook run after every recorded decision, allowed or not.
func WithOnDecision(fn func(r *http.Request, key string, d Decision)) Option {
	return func(l *Limiter) {
		l.onDecision = fn
	}
}

// New creates a rate limiter allowing limit requests per window for each key.
func New(st store.Store, limit int, window time.Duration, keyFn KeyFunc, opts ...Option) *Limiter {
	l := &Limiter{
		store:      st,
		limit:      int64(limit),
		window:     window,
		keyFn:      keyFn,
		headerMode: HeadersNever,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one request for key and reports whether it is within the limit.
// The request is counted even when denied.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    count <= l.limit,
		Count:      count,
		Limit:      l.limit,
		Remaining:  max(0, l.limit-count),
		ResetAfter: ttl,
	}, nil
}

// Window returns the current ledger window for key without recording a request.
func (l *Limiter) Window(ctx context.Context, key string) (store.Window, error) {
	return l.store.Get(ctx, key)
}

// Reset clears the ledger window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Handler returns the rate limiting middleware.
// Denied requests get 429 with a plain-text body. A store failure yields 500.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFn(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		d, err := l.Allow(r.Context(), key)
		if err != nil {
			http.Error(w, "Rate limit check failed", http.StatusInternalServerError)
			return
		}
		if l.onDecision != nil {
			l.onDecision(r, key, d)
		}

		if l.headerMode == HeadersAlways || (l.headerMode == HeadersOnLimitExceeded && !d.Allowed) {
			w.Header().Set("RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			w.Header().Set("RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			w.Header().Set("RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.ResetAfter).Unix(), 10))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.ResetAfter.Seconds()))))
			}
		}

		if !d.Allowed {
			if l.onLimit != nil {
				l.onLimit(r, key, d)
			}
			http.Error(w, DeniedBody, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
