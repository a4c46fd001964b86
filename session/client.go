// Package session keeps the storefront's hosted-auth session alive at the edge.
//
// The auth provider (Supabase GoTrue) stores the session in the
// sb-<project-ref>-auth-token cookie. When the access token is about to
// expire, Refresher exchanges the refresh token for a new session, writes it
// back to the browser and rewrites the request so the renderer sees the
// fresh token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gotrue "github.com/supabase-community/auth-go"
)

// ErrInvalidGrant means the refresh token was rejected and the session is over.
var ErrInvalidGrant = errors.New("session: invalid refresh token")

// Session is the JSON document stored in the auth cookie.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type,omitempty"`
	ExpiresIn    int64           `json:"expires_in,omitempty"`
	ExpiresAt    int64           `json:"expires_at,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Expiry returns the access token expiry from expires_at, falling back to the
// token's exp claim. It is zero when neither is readable.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt != 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	// The renderer verifies the token; only the claim is needed here.
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Client talks to the auth provider's token endpoint.
type Client struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
}

// statusPattern extracts the HTTP status from the auth client's error text.
var statusPattern = regexp.MustCompile(`response status code (\d+)`)

func (c *Client) api() gotrue.Client {
	api := gotrue.New("", c.AnonKey).WithCustomAuthURL(strings.TrimRight(c.BaseURL, "/") + "/auth/v1")
	if c.HTTPClient != nil {
		api = api.WithClient(*c.HTTPClient)
	}
	return api
}

// Refresh exchanges refreshToken for a new session. A 400 or 401 from the
// provider is reported as ErrInvalidGrant. The request is bounded by the HTTP
// client's timeout; ctx is only checked before it starts.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := c.api().RefreshToken(refreshToken)
	if err != nil {
		if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
			status, _ := strconv.Atoi(m[1])
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %s", ErrInvalidGrant, err.Error())
			}
		}
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, errors.New("refresh response missing tokens")
	}
	user, err := json.Marshal(resp.User)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    int64(resp.ExpiresIn),
		User:         user,
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Unix() + s.ExpiresIn
	}
	return s, nil
}
