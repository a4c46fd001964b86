package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abuimran/farmgate/wrapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got string
	err error
}

func (f *fakeSender) Send(_ context.Context, message string) error {
	f.got = message
	return f.err
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/telegram", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	wrapper.New()(h).ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sendErr    error
		wantStatus int
		wantCode   string
	}{
		{"sent", `{"message":"New order"}`, nil, http.StatusOK, ""},
		{"empty message", `{"message":""}`, nil, http.StatusBadRequest, "invalid_request"},
		{"too long", `{"message":"` + strings.Repeat("x", MaxMessageLength+1) + `"}`, nil, http.StatusBadRequest, "invalid_request"},
		{"not configured", `{"message":"hi"}`, ErrNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
		{"api error", `{"message":"hi"}`, &APIError{Status: 400, Description: "chat not found"}, http.StatusBadGateway, "bad_gateway"},
		{"transport error", `{"message":"hi"}`, errors.New("dial tcp: refused"), http.StatusBadGateway, "bad_gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{err: tt.sendErr}

			rec := post(Handler(sender, nil), tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode == "" {
				var body map[string]bool
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.True(t, body["success"])
				assert.Equal(t, "New order", sender.got)
				return
			}
			var body map[string]*wrapper.Error
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body["error"].Code)
		})
	}
}
