package upstream

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abuimran/farmgate/logging"
	"go.uber.org/zap/zapcore"
)

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:3000", "ftp://example.com", "http://"} {
		if _, err := New(raw, nil); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestProxy_Forwards(t *testing.T) {
	var gotPath, gotHost, gotXFF, gotCookie string
	renderer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotHost = r.Host
		gotXFF = r.Header.Get("X-Forwarded-For")
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html>shop</html>")
	}))
	defer renderer.Close()

	p, err := New(renderer.URL, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://shop.example.com/shop/brahma?lang=uz", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("Cookie", "sb-abcd-auth-token=fresh")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "<html>shop</html>" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if gotPath != "/shop/brahma?lang=uz" {
		t.Errorf("expected path forwarded, got %q", gotPath)
	}
	if gotHost != "shop.example.com" {
		t.Errorf("expected original host, got %q", gotHost)
	}
	if gotXFF != "203.0.113.9" {
		t.Errorf("expected X-Forwarded-For, got %q", gotXFF)
	}
	if gotCookie != "sb-abcd-auth-token=fresh" {
		t.Errorf("expected cookie forwarded, got %q", gotCookie)
	}
}

func TestProxy_BadGateway(t *testing.T) {
	renderer := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := renderer.URL
	renderer.Close()

	var errOut bytes.Buffer
	log, err := logging.NewWithWriters(logging.Config{}, zapcore.AddSync(io.Discard), zapcore.AddSync(&errOut))
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	p, err := New(target, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shop", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(errOut.String(), "[ERROR] [Proxy] GET /shop:") {
		t.Errorf("expected proxy error line, got %q", errOut.String())
	}
}
