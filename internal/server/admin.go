package server

import (
	"net/http"
	"time"

	"github.com/abuimran/farmgate/ratelimit"
	"github.com/abuimran/farmgate/ratelimit/stats"
	"github.com/abuimran/farmgate/wrapper"
	"github.com/go-chi/chi/v5"
)

type windowResponse struct {
	Key         string     `json:"key"`
	Count       int64      `json:"count"`
	WindowStart *time.Time `json:"window_start"`
}

func getWindow(limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		win, err := limiter.Window(r.Context(), key)
		if err != nil {
			wrapper.SetError(r, wrapper.ErrInternal.With("Failed to read rate limit window"))
			return
		}

		resp := windowResponse{Key: key, Count: win.Count}
		if !win.Start.IsZero() {
			start := win.Start.UTC()
			resp.WindowStart = &start
		}
		wrapper.SetHeader(r, "Cache-Control", "no-store")
		wrapper.SetResponse(r, http.StatusOK, resp)
	}
}

func resetWindow(limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		if err := limiter.Reset(r.Context(), chi.URLParam(r, "key")); err != nil {
			wrapper.SetError(r, wrapper.ErrInternal.With("Failed to reset rate limit window"))
			return
		}
		wrapper.SetResponse(r, http.StatusNoContent, nil)
	}
}

func getStats(rec stats.Recorder) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		totals, err := rec.Snapshot(r.Context())
		if err != nil {
			wrapper.SetError(r, wrapper.ErrInternal.With("Failed to read stats"))
			return
		}
		wrapper.SetHeader(r, "Cache-Control", "no-store")
		wrapper.SetResponse(r, http.StatusOK, totals)
	}
}
