package bind_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abuimran/farmgate/bind"
	"github.com/abuimran/farmgate/wrapper"
	"github.com/go-playground/validator/v10"
)

type notifyRequest struct {
	Message string `json:"message" validate:"required,max=20"`
	Channel string `json:"channel,omitempty" validate:"omitempty,oneof=orders alerts"`
}

func handler(ok *bool) http.Handler {
	return wrapper.New()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		var req notifyRequest
		*ok = bind.JSON(r, &req)
		if *ok {
			wrapper.SetResponse(r, http.StatusOK, req)
		}
	}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *wrapper.Error {
	t.Helper()
	var body map[string]*wrapper.Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body["error"]
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
		wantParam  string
		wantCode   string
	}{
		{"valid", `{"message":"order #12"}`, true, http.StatusOK, "", ""},
		{"invalid json", `{"message":`, false, http.StatusBadRequest, "", "bad_request"},
		{"missing message", `{}`, false, http.StatusBadRequest, "message", "required"},
		{"message too long", `{"message":"` + strings.Repeat("x", 21) + `"}`, false, http.StatusBadRequest, "message", "max"},
		{"bad channel", `{"message":"hi","channel":"sms"}`, false, http.StatusBadRequest, "channel", "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ok bool
			req := httptest.NewRequest(http.MethodPost, "/api/notifications/telegram", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler(&ok).ServeHTTP(rec, req)

			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantOK {
				return
			}

			e := decodeError(t, rec)
			if tt.wantParam == "" {
				if e.Code != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, e.Code)
				}
				return
			}
			if len(e.Errors) != 1 {
				t.Fatalf("expected one field error, got %+v", e.Errors)
			}
			if e.Errors[0].Param != tt.wantParam || e.Errors[0].Code != tt.wantCode {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantParam, tt.wantCode, e.Errors[0].Param, e.Errors[0].Code)
			}
		})
	}
}

func TestJSON_MaxBodySize(t *testing.T) {
	var ok bool
	h := bind.MaxBodySize(16)(handler(&ok))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"`+strings.Repeat("x", 64)+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if ok {
		t.Error("expected bind to fail")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", rec.Code)
	}
}

func TestJSON_WithoutWrapper(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))

	var dest notifyRequest
	if bind.JSON(req, &dest) {
		t.Error("expected validation failure")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := bind.RegisterValidation("chatid", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "-")
	})
	if err != nil {
		t.Fatalf("RegisterValidation: %v", err)
	}

	type req struct {
		ChatID string `json:"chat_id" validate:"chatid"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"chat_id":"123"}`))
	var dest req
	if bind.JSON(r, &dest) {
		t.Error("expected custom validation to fail")
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"chat_id":"-100123"}`))
	if !bind.JSON(r, &dest) {
		t.Error("expected custom validation to pass")
	}
}
