// Package upstream forwards requests the gateway does not answer itself to
// the storefront renderer.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/abuimran/farmgate/logging"
)

// Proxy is a reverse proxy to a single renderer.
type Proxy struct {
	target *url.URL
	rp     *httputil.ReverseProxy
	log    *logging.Logger
}

// New builds a Proxy for rawURL, which must be an absolute http(s) URL.
func New(rawURL string, log *logging.Logger) (*Proxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, errors.New("upstream url must be http or https")
	}
	if target.Host == "" {
		return nil, errors.New("upstream url has no host")
	}
	if log == nil {
		log = logging.Nop()
	}

	p := &Proxy{target: target, log: log}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		FlushInterval: 100 * time.Millisecond,
		ErrorHandler:  p.handleError,
	}
	return p, nil
}

// Target returns the renderer URL.
func (p *Proxy) Target() *url.URL {
	return p.target
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.log.Error(logging.SourceProxy, fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}
