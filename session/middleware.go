package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abuimran/farmgate/logging"
)

// DefaultRefreshMargin refreshes sessions expiring within a minute.
const DefaultRefreshMargin = 60 * time.Second

// TokenRefresher exchanges a refresh token for a new session.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Refresher is the session-continuation middleware.
type Refresher struct {
	Client        TokenRefresher
	CookieName    string
	RefreshMargin time.Duration
	Logger        *logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Passthrough is used when hosted auth is not configured.
func Passthrough(next http.Handler) http.Handler {
	return next
}

// Middleware refreshes the session cookie when it is close to expiry and
// calls next. Refresh failures never block the request.
func (s *Refresher) Middleware(next http.Handler) http.Handler {
	margin := s.RefreshMargin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	log := s.Logger
	if log == nil {
		log = logging.Nop()
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, ok := readValue(r, s.CookieName)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		current, err := decodeSession(value)
		if err != nil {
			log.Debug(logging.SourceSession, "ignoring unreadable session cookie: "+err.Error())
			next.ServeHTTP(w, r)
			return
		}

		exp := current.Expiry()
		if exp.IsZero() {
			// Without an expiry every request would hit the provider.
			log.Debug(logging.SourceSession, "session cookie has no expiry, not refreshing")
			next.ServeHTTP(w, r)
			return
		}
		if exp.Sub(now()) > margin {
			next.ServeHTTP(w, r)
			return
		}

		fresh, err := s.Client.Refresh(r.Context(), current.RefreshToken)
		switch {
		case errors.Is(err, ErrInvalidGrant):
			log.Info(logging.SourceSession, "session expired, clearing auth cookies")
			s.clear(w, r)
		case err != nil:
			log.Warn(logging.SourceSession, "session refresh failed: "+err.Error())
		default:
			if err := s.store(w, r, fresh); err != nil {
				log.Warn(logging.SourceSession, "failed to encode session: "+err.Error())
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Refresher) store(w http.ResponseWriter, r *http.Request, fresh *Session) error {
	value, err := encodeSession(fresh)
	if err != nil {
		return err
	}
	cookies := split(s.CookieName, value)

	written := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		setAttributes(c, isSecure(r))
		http.SetCookie(w, c)
		written[c.Name] = true
	}
	// Drop chunks the shorter session no longer uses.
	for _, name := range chunkNames(r, s.CookieName) {
		if !written[name] {
			expire(w, r, name)
		}
	}

	rewriteRequestCookies(r, s.CookieName, cookies)
	return nil
}

func (s *Refresher) clear(w http.ResponseWriter, r *http.Request) {
	for _, name := range chunkNames(r, s.CookieName) {
		expire(w, r, name)
	}
	rewriteRequestCookies(r, s.CookieName, nil)
}

func expire(w http.ResponseWriter, r *http.Request, name string) {
	c := &http.Cookie{Name: name, MaxAge: -1}
	setAttributes(c, isSecure(r))
	http.SetCookie(w, c)
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
