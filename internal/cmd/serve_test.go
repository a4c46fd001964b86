package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abuimran/farmgate/internal/config"
	"github.com/abuimran/farmgate/logging"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	return cfg
}

func TestBuild_Defaults(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.RateLimit.Limit = 2

	a, err := build(cfg, logging.Nop())
	require.NoError(t, err)
	defer a.close()

	h := a.server.Handler()
	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.RemoteAddr = "10.0.0.5:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	// No upstream configured: allowed requests fall through to 404.
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestBuild_InvalidUpstream(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Upstream.URL = "ftp://storefront"

	_, err := build(cfg, logging.Nop())
	assert.Error(t, err)
}

func TestBuild_UpstreamErrorsSanitized(t *testing.T) {
	renderer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Error: fetch failed\n    at Page (/app/.next/server/app/page.js:1:99)"))
	}))
	defer renderer.Close()

	for _, enabled := range []bool{true, false} {
		cfg := loadTestConfig(t)
		cfg.Upstream.URL = renderer.URL
		cfg.Upstream.SanitizeErrors = enabled

		a, err := build(cfg, logging.Nop())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/shop", nil)
		rec := httptest.NewRecorder()
		a.server.Handler().ServeHTTP(rec, req)
		a.close()

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		if enabled {
			assert.Equal(t, "Error: fetch failed", rec.Body.String())
		} else {
			assert.Contains(t, rec.Body.String(), "page.js:1:99")
		}
	}
}

func TestBuild_UnreachableRedis(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.RateLimit.Store = "redis"
	cfg.Redis.URL = "127.0.0.1:1"

	_, err := build(cfg, logging.Nop())
	assert.Error(t, err)
}

func TestBuild_WithAuth(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Auth.URL = "https://abcd.supabase.co"
	cfg.Auth.AnonKey = "anon"

	a, err := build(cfg, logging.Nop())
	require.NoError(t, err)
	defer a.close()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-03-01")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--extended"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, Execute())

	assert.True(t, strings.HasPrefix(out.String(), "farmgate 1.2.3\n"))
	assert.Contains(t, out.String(), "Commit: abc123")
}
