// Package server assembles the gateway's HTTP handler.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/abuimran/farmgate/auth"
	"github.com/abuimran/farmgate/bind"
	"github.com/abuimran/farmgate/gatekeeper"
	"github.com/abuimran/farmgate/internal/config"
	"github.com/abuimran/farmgate/logging"
	"github.com/abuimran/farmgate/notify"
	"github.com/abuimran/farmgate/wrapper"
	"github.com/go-chi/chi/v5"
)

// Deps are the components the router is built from.
type Deps struct {
	Logger     *logging.Logger
	Gatekeeper *gatekeeper.Gatekeeper

	// Upstream receives every request without a local route. Nil answers 404.
	Upstream http.Handler

	// Notifier backs the Telegram route. Nil answers 503.
	Notifier notify.Sender

	// AdminToken enables /admin when set.
	AdminToken string
}

// Server is the gateway's HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	log    *logging.Logger
}

// New builds the router. Every request passes RequestID and the gatekeeper
// first; the gatekeeper runs the session middleware before the route.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Notifier == nil {
		deps.Notifier = (*notify.Telegram)(nil)
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(deps.Gatekeeper.Wrap)

	fallback := deps.Upstream
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	r.NotFound(fallback.ServeHTTP)
	r.MethodNotAllowed(fallback.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(wrapper.New(
			wrapper.WithCanonlog(),
			wrapper.WithCanonlogFields(func(r *http.Request) map[string]any {
				return map[string]any{"request_id": GetRequestID(r.Context())}
			}),
		))

		r.Get("/healthz", func(_ http.ResponseWriter, r *http.Request) {
			wrapper.SetResponse(r, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.With(bind.MaxBodySize(bind.DefaultMaxBodySize)).
			Post("/api/notifications/telegram", notify.Handler(deps.Notifier, deps.Logger))

		if deps.AdminToken != "" {
			limiter := deps.Gatekeeper.Limiter()
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.BearerToken(auth.StaticToken(deps.AdminToken)))
				r.Get("/ratelimit/{key}", getWindow(limiter))
				r.Delete("/ratelimit/{key}", resetWindow(limiter))
				r.Get("/stats", getStats(deps.Gatekeeper.Recorder()))
			})
		}
	})

	s := &Server{router: r, cfg: cfg, log: deps.Logger}
	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info(logging.SourceServer, "Starting HTTP server on "+s.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(logging.SourceServer, "Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
