// Package gatekeeper is the edge middleware every storefront request passes through.
//
// For each request that is not a static asset it:
//
//  1. resolves the client key (Resolver),
//  2. on API paths, runs the fixed-window limiter and answers 429 when the
//     client is over its quota,
//  3. logs the request line,
//  4. hands the request to the session middleware, which calls the renderer.
//
// A denied request is logged once at WARN and never reaches steps 3 and 4.
// Every other request gets exactly one INFO line.
package gatekeeper

import (
	"net/http"
	"strings"
	"time"

	"github.com/abuimran/farmgate/logging"
	"github.com/abuimran/farmgate/ratelimit"
	"github.com/abuimran/farmgate/ratelimit/stats"
	"github.com/abuimran/farmgate/ratelimit/store"
)

// Defaults matching the storefront's limits.
const (
	DefaultLimit     = 50
	DefaultWindow    = time.Minute
	DefaultAPIPrefix = "/api"
)

// Gatekeeper decides, per request, whether to deny or delegate.
type Gatekeeper struct {
	limiter    *ratelimit.Limiter
	resolver   Resolver
	apiPrefix  string
	limit      int
	window     time.Duration
	headerMode ratelimit.HeaderMode
	log        *logging.Logger
	session    func(http.Handler) http.Handler
	recorder   stats.Recorder
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithLimit sets the number of API requests allowed per client per window.
func WithLimit(limit int, window time.Duration) Option {
	return func(g *Gatekeeper) {
		g.limit = limit
		g.window = window
	}
}

// WithAPIPrefix sets the path prefix that is rate limited.
// The match is a plain string prefix: "/api" also covers "/apiary".
func WithAPIPrefix(prefix string) Option {
	return func(g *Gatekeeper) {
		g.apiPrefix = prefix
	}
}

// WithResolver replaces the client key resolver.
func WithResolver(res Resolver) Option {
	return func(g *Gatekeeper) {
		g.resolver = res
	}
}

// WithHeaderMode exposes rate limit headers on API responses.
func WithHeaderMode(mode ratelimit.HeaderMode) Option {
	return func(g *Gatekeeper) {
		g.headerMode = mode
	}
}

// WithSession sets the session-continuation middleware run after the gatekeeper allows a request.
func WithSession(mw func(http.Handler) http.Handler) Option {
	return func(g *Gatekeeper) {
		g.session = mw
	}
}

// WithRecorder records every API decision.
func WithRecorder(rec stats.Recorder) Option {
	return func(g *Gatekeeper) {
		g.recorder = rec
	}
}

// New builds a Gatekeeper on the given ledger. The store is owned by the
// caller, who closes it at shutdown.
func New(st store.Store, log *logging.Logger, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		resolver:  Resolver{},
		apiPrefix: DefaultAPIPrefix,
		limit:     DefaultLimit,
		window:    DefaultWindow,
		log:       log,
		session:   func(next http.Handler) http.Handler { return next },
		recorder:  stats.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logging.Nop()
	}

	g.limiter = ratelimit.New(st, g.limit, g.window, g.apiKey,
		ratelimit.WithHeaderMode(g.headerMode),
		ratelimit.WithOnLimit(g.denied),
		ratelimit.WithOnDecision(g.record),
	)
	return g
}

// Limiter exposes the underlying limiter for admin inspection.
func (g *Gatekeeper) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// Recorder exposes the decision recorder.
func (g *Gatekeeper) Recorder() stats.Recorder {
	return g.recorder
}

// Wrap returns next guarded by the gatekeeper.
// Static assets go straight to next, skipping the session middleware too.
func (g *Gatekeeper) Wrap(next http.Handler) http.Handler {
	delegate := g.session(next)

	logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.log.Info(logging.SourceRequest, r.Method+" "+r.URL.Path)
		delegate.ServeHTTP(w, r)
	})
	limited := g.limiter.Handler(logged)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsStaticAsset(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// apiKey is the limiter key function: empty for non-API paths, which skips limiting.
func (g *Gatekeeper) apiKey(r *http.Request) string {
	if !strings.HasPrefix(r.URL.Path, g.apiPrefix) {
		return ""
	}
	return g.resolver.Resolve(r)
}

func (g *Gatekeeper) denied(r *http.Request, key string, _ ratelimit.Decision) {
	g.log.Warn(logging.SourceMiddleware, "Rate limit exceeded for IP: "+key+" on path: "+r.URL.Path)
}

func (g *Gatekeeper) record(r *http.Request, key string, d ratelimit.Decision) {
	err := g.recorder.Record(r.Context(), stats.Event{
		Key:     key,
		Allowed: d.Allowed,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Now(),
	})
	if err != nil {
		g.log.Debug(logging.SourceMiddleware, "stats record failed: "+err.Error())
	}
}
