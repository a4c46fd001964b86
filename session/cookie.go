package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	base64Prefix = "base64-"

	// maxChunkSize keeps each cookie under browser limits once name and
	// attributes are added.
	maxChunkSize = 3180

	cookieMaxAge = 400 * 24 * time.Hour
)

// CookieName returns the auth cookie name for a hosted auth URL:
// https://abcd.supabase.co gives sb-abcd-auth-token.
func CookieName(authURL string) string {
	u, err := url.Parse(authURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	ref, _, _ := strings.Cut(u.Hostname(), ".")
	return "sb-" + ref + "-auth-token"
}

// chunkNames lists the request cookies belonging to name, either the
// unchunked cookie itself or name.0, name.1, ...
func chunkNames(r *http.Request, name string) []string {
	var names []string
	for _, c := range r.Cookies() {
		if c.Name == name || isChunk(c.Name, name) {
			names = append(names, c.Name)
		}
	}
	return names
}

func isChunk(cookie, name string) bool {
	suffix, ok := strings.CutPrefix(cookie, name+".")
	if !ok {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

// readValue reassembles the cookie value for name.
func readValue(r *http.Request, name string) (string, bool) {
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value, true
	}

	var b strings.Builder
	for i := 0; ; i++ {
		c, err := r.Cookie(name + "." + strconv.Itoa(i))
		if err != nil {
			break
		}
		b.WriteString(c.Value)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func decodeSession(value string) (*Session, error) {
	raw := []byte(value)
	if rest, ok := strings.CutPrefix(value, base64Prefix); ok {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(rest, "="))
		if err != nil {
			return nil, err
		}
		raw = decoded
	} else if unescaped, err := url.QueryUnescape(value); err == nil {
		raw = []byte(unescaped)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.RefreshToken == "" {
		return nil, errors.New("session has no refresh token")
	}
	return &s, nil
}

func encodeSession(s *Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64Prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// split breaks value into cookies named name (when it fits) or name.0, name.1, ...
func split(name, value string) []*http.Cookie {
	if len(value) <= maxChunkSize {
		return []*http.Cookie{{Name: name, Value: value}}
	}
	var cookies []*http.Cookie
	for i := 0; len(value) > 0; i++ {
		n := min(maxChunkSize, len(value))
		cookies = append(cookies, &http.Cookie{Name: name + "." + strconv.Itoa(i), Value: value[:n]})
		value = value[n:]
	}
	return cookies
}

func setAttributes(c *http.Cookie, secure bool) {
	c.Path = "/"
	c.SameSite = http.SameSiteLaxMode
	c.Secure = secure
	if c.MaxAge == 0 {
		c.MaxAge = int(cookieMaxAge.Seconds())
	}
}

// rewriteRequestCookies replaces the request's auth cookies with fresh, so
// handlers further down read the refreshed session.
func rewriteRequestCookies(r *http.Request, name string, fresh []*http.Cookie) {
	var kept []string
	for _, c := range r.Cookies() {
		if c.Name == name || isChunk(c.Name, name) {
			continue
		}
		kept = append(kept, c.Name+"="+c.Value)
	}
	for _, c := range fresh {
		kept = append(kept, c.Name+"="+c.Value)
	}
	if len(kept) == 0 {
		r.Header.Del("Cookie")
		return
	}
	r.Header.Set("Cookie", strings.Join(kept, "; "))
}
