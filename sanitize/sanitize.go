// Package sanitize strips stack traces and source paths from the storefront
// renderer's error pages before they reach the browser.
//
// Only responses at or above the minimum status (500 by default) are
// buffered and rewritten. Everything else streams through untouched.
//
//	proxy = sanitize.New()(proxy)
//
// Example:
//   - Before: "Error: boom\n    at Page (/app/.next/server/app/page.js:1:2345)"
//   - After:  "Error: boom"
package sanitize

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	// JavaScript and Go stack frames.
	stackTracePattern = regexp.MustCompile(`(?m)^\s*at\s+.*$|^\s*goroutine\s+\d+.*$|^\s*\S+\.go:\d+.*$`)

	// Absolute source paths with a line number, Unix or Windows.
	filePathPattern = regexp.MustCompile(`(/[a-zA-Z0-9_\-./\[\]()]+\.(?:go|js|mjs|cjs|ts|tsx|jsx):\d+(?::\d+)?)|([A-Z]:\\[a-zA-Z0-9_\-\\./]+\.(?:go|js|mjs|cjs|ts|tsx|jsx):\d+(?::\d+)?)`)
)

// Config configures the sanitizer.
type Config struct {
	StripStackTraces bool
	StripFilePaths   bool

	// ReplacementMsg replaces each stripped path and is the whole body when
	// nothing else is left.
	ReplacementMsg string

	// MinStatus is the lowest status that is sanitized.
	MinStatus int
}

type sanitizeWriter struct {
	http.ResponseWriter
	config      Config
	buf         bytes.Buffer
	statusCode  int
	wroteHeader bool
	buffering   bool
}

func (sw *sanitizeWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.statusCode = code
	sw.wroteHeader = true
	// Compressed bodies cannot be rewritten and pass through.
	sw.buffering = code >= sw.config.MinStatus && sw.Header().Get("Content-Encoding") == ""
	if !sw.buffering {
		sw.ResponseWriter.WriteHeader(code)
	}
}

func (sw *sanitizeWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	if !sw.buffering {
		return sw.ResponseWriter.Write(b)
	}
	return sw.buf.Write(b)
}

// Flush forwards to the underlying writer unless the response is being buffered.
func (sw *sanitizeWriter) Flush() {
	if sw.buffering {
		return
	}
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *sanitizeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(sw.ResponseWriter).Hijack()
}

func (sw *sanitizeWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// finish writes the sanitized body of a buffered response.
func (sw *sanitizeWriter) finish() {
	if !sw.buffering {
		return
	}

	body := sw.buf.String()
	if sw.config.StripStackTraces {
		body = stackTracePattern.ReplaceAllString(body, "")
	}
	if sw.config.StripFilePaths {
		body = filePathPattern.ReplaceAllString(body, sw.config.ReplacementMsg)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		body = sw.config.ReplacementMsg
	}

	sw.ResponseWriter.Header().Set("Content-Length", strconv.Itoa(len(body)))
	sw.ResponseWriter.WriteHeader(sw.statusCode)
	sw.ResponseWriter.Write([]byte(body))
}

// New returns middleware that sanitizes error responses.
// By default both stack traces and file paths are stripped from 5xx bodies.
func New(opts ...Option) func(http.Handler) http.Handler {
	config := Config{
		StripStackTraces: true,
		StripFilePaths:   true,
		ReplacementMsg:   "Internal Server Error",
		MinStatus:        http.StatusInternalServerError,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &sanitizeWriter{
				ResponseWriter: w,
				config:         config,
				statusCode:     http.StatusOK,
			}
			defer sw.finish()
			next.ServeHTTP(sw, r)
		})
	}
}

// Option configures the sanitizer.
type Option func(*Config)

// WithStackTraces controls whether stack frames are stripped.
func WithStackTraces(strip bool) Option {
	return func(c *Config) {
		c.StripStackTraces = strip
	}
}

// WithFilePaths controls whether source paths are stripped.
func WithFilePaths(strip bool) Option {
	return func(c *Config) {
		c.StripFilePaths = strip
	}
}

// WithReplacementMessage sets the text used for stripped content.
func WithReplacementMessage(msg string) Option {
	return func(c *Config) {
		c.ReplacementMsg = msg
	}
}

// WithMinStatus sanitizes responses with status >= code. Use 400 to include
// client errors.
func WithMinStatus(code int) Option {
	return func(c *Config) {
		c.MinStatus = code
	}
}
