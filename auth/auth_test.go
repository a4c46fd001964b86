package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abuimran/farmgate/wrapper"
)

func TestStaticToken(t *testing.T) {
	v := StaticToken("s3cret")

	if !v("s3cret") {
		t.Error("expected matching token accepted")
	}
	if v("s3cre") || v("s3cret!") || v("") {
		t.Error("expected mismatched tokens rejected")
	}
	if StaticToken("")("") {
		t.Error("expected empty configured token to reject everything")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"valid", "Bearer s3cret", http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "Missing authorization header"},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized, "Invalid authorization format"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "Empty bearer token"},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, "Invalid bearer token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotToken string
			h := wrapper.New()(BearerToken(StaticToken("s3cret"))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				gotToken, _ = BearerTokenFromContext(r.Context())
				wrapper.SetResponse(r, http.StatusOK, nil)
			})))

			req := httptest.NewRequest(http.MethodGet, "/admin/stats", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if gotToken != "s3cret" {
					t.Errorf("expected token in context, got %q", gotToken)
				}
				return
			}

			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
			var body map[string]*wrapper.Error
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"].Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, body["error"].Message)
			}
		})
	}
}

func TestBearerToken_WithoutWrapper(t *testing.T) {
	h := BearerToken(StaticToken("s3cret"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
