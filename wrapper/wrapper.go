// Package wrapper holds the response for farmgate's own API routes in the
// request context and writes it once the handler returns.
//
// Handlers never write to the ResponseWriter. They call SetResponse or
// SetError and the middleware renders JSON:
//
//	r.Use(wrapper.New(wrapper.WithCanonlog()))
//
//	r.Post("/api/notifications/telegram", func(w http.ResponseWriter, r *http.Request) {
//	    if err := tg.Send(r.Context(), msg); err != nil {
//	        wrapper.SetError(r, wrapper.ErrBadGateway)
//	        return
//	    }
//	    wrapper.SetResponse(r, http.StatusOK, map[string]bool{"success": true})
//	})
//
// Errors are rendered as {"error": {"type", "code", "message", ...}}.
// A panic in the handler is recovered and rendered as ErrInternal.
//
// Routes proxied to the storefront renderer write directly and must not sit
// behind this middleware.
package wrapper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"
)

type contextKey string

const stateKey contextKey = "farmgate_response"

type state struct {
	mu      sync.Mutex
	err     *Error
	status  int
	body    any
	headers http.Header
}

// Error is the JSON error envelope returned by local API routes.
type Error struct {
	Type    string       `json:"type"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message"`
	Param   string       `json:"param,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	Status  int          `json:"-"`
}

// FieldError describes one invalid field of a request body.
type FieldError struct {
	Param   string `json:"param"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Type and Code so a copy made by With still matches its sentinel.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// With returns a copy of e carrying message.
func (e *Error) With(message string) *Error {
	if e == nil {
		return nil
	}
	dup := *e
	dup.Message = message
	return &dup
}

var (
	ErrBadRequest         = &Error{Type: "request_error", Code: "bad_request", Message: "Bad request", Status: http.StatusBadRequest}
	ErrUnauthorized       = &Error{Type: "auth_error", Code: "unauthorized", Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrNotFound           = &Error{Type: "not_found", Code: "resource_not_found", Message: "Resource not found", Status: http.StatusNotFound}
	ErrPayloadTooLarge    = &Error{Type: "request_error", Code: "payload_too_large", Message: "Payload too large", Status: http.StatusRequestEntityTooLarge}
	ErrInternal           = &Error{Type: "internal_error", Code: "internal", Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrBadGateway         = &Error{Type: "upstream_error", Code: "bad_gateway", Message: "Upstream service failed", Status: http.StatusBadGateway}
	ErrServiceUnavailable = &Error{Type: "request_error", Code: "service_unavailable", Message: "Service unavailable", Status: http.StatusServiceUnavailable}
)

// NewValidationError builds a 400 listing every invalid field.
func NewValidationError(errs []FieldError) *Error {
	return &Error{
		Type:    "validation_error",
		Code:    "invalid_request",
		Message: "Validation failed",
		Errors:  errs,
		Status:  http.StatusBadRequest,
	}
}

// SetError records err as the response. It wins over any SetResponse.
// No-op outside the middleware.
func SetError(r *http.Request, err *Error) {
	st := getState(r.Context())
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.err = err
}

// SetResponse records a JSON success response. A nil body writes only the status.
// No-op outside the middleware.
func SetResponse(r *http.Request, status int, body any) {
	st := getState(r.Context())
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status = status
	st.body = body
}

// SetHeader sets a header on the eventual response.
func SetHeader(r *http.Request, key, value string) {
	st := getState(r.Context())
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.headers == nil {
		st.headers = make(http.Header)
	}
	st.headers.Set(key, value)
}

// HasState reports whether the middleware is active for ctx.
func HasState(ctx context.Context) bool {
	return getState(ctx) != nil
}

func getState(ctx context.Context) *state {
	st, _ := ctx.Value(stateKey).(*state)
	return st
}

// Option configures the middleware.
type Option func(*config)

type config struct {
	canonlog       bool
	canonlogFields func(*http.Request) map[string]any
}

// WithCanonlog emits one canonical log line per request with method, path,
// route, status and duration_ms. Errors set via SetError are attached.
func WithCanonlog() Option {
	return func(c *config) {
		c.canonlog = true
	}
}

// WithCanonlogFields adds fields to the canonical line at request start.
func WithCanonlogFields(fn func(*http.Request) map[string]any) Option {
	return func(c *config) {
		c.canonlogFields = fn
	}
}

// New returns the middleware.
func New(opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := &state{}
			ctx := context.WithValue(r.Context(), stateKey, st)

			start := time.Now()
			if cfg.canonlog {
				ctx = canonlog.NewContext(ctx)
				canonlog.InfoAddMany(ctx, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				if cfg.canonlogFields != nil {
					canonlog.InfoAddMany(ctx, cfg.canonlogFields(r))
				}
			}
			r = r.WithContext(ctx)

			defer func() {
				if rec := recover(); rec != nil {
					st.mu.Lock()
					st.err = ErrInternal
					st.mu.Unlock()
					if cfg.canonlog {
						canonlog.ErrorAdd(ctx, fmt.Errorf("panic: %v", rec))
					}
				}
				if cfg.canonlog {
					flushCanonical(ctx, r, st, start)
				}
				writeResponse(w, st)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func flushCanonical(ctx context.Context, r *http.Request, st *state, start time.Time) {
	st.mu.Lock()
	status := st.status
	if st.err != nil {
		status = st.err.Status
		canonlog.ErrorAdd(ctx, st.err)
	}
	st.mu.Unlock()

	route := r.URL.Path
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}

	canonlog.InfoAddMany(ctx, map[string]any{
		"route":       route,
		"status":      status,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	canonlog.Flush(ctx)
}

func writeResponse(w http.ResponseWriter, st *state) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for key, values := range st.headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	switch {
	case st.err != nil:
		writeJSON(w, st.err.Status, map[string]*Error{"error": st.err})
	case st.body != nil:
		writeJSON(w, st.status, st.body)
	case st.status != 0:
		w.WriteHeader(st.status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
