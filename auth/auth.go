// Package auth guards the gateway's admin routes with a bearer token.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/abuimran/farmgate/wrapper"
)

type contextKey string

const bearerTokenKey contextKey = "bearer_token"

// TokenValidator reports whether token is accepted. It is called concurrently.
type TokenValidator func(token string) bool

// StaticToken accepts exactly want, compared in constant time.
// An empty want rejects everything.
func StaticToken(want string) TokenValidator {
	return func(token string) bool {
		if want == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
	}
}

// BearerToken returns middleware that requires "Authorization: Bearer <token>"
// accepted by validator. Failures are answered with wrapper.ErrUnauthorized
// when the wrapper is active, a plain 401 otherwise.
func BearerToken(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, r, "Missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				unauthorized(w, r, "Invalid authorization format")
				return
			}
			if token == "" {
				unauthorized(w, r, "Empty bearer token")
				return
			}
			if !validator(token) {
				unauthorized(w, r, "Invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), bearerTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerTokenFromContext returns the token accepted by BearerToken.
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenKey).(string)
	return token, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="farmgate"`)
	if wrapper.HasState(r.Context()) {
		wrapper.SetError(r, wrapper.ErrUnauthorized.With(msg))
		return
	}
	http.Error(w, msg, http.StatusUnauthorized)
}
