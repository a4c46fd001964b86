package gatekeeper

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AnonymousKey is the client key shared by every request that carries no
// usable address.
const AnonymousKey = "anonymous"

// RealIPHeader is the header most hosting edges write with the caller's
// address. Only trust it when such an edge overwrites it on every request.
const RealIPHeader = "X-Real-IP"

// Resolver derives the client key used by the rate limiter.
//
// Order of preference: the platform-provided address, the first entry of
// X-Forwarded-For, then AnonymousKey. The platform address is read from
// PlatformHeader when set, otherwise from the connection's RemoteAddr. The
// zero Resolver uses RemoteAddr, so clients cannot choose their own key.
// Values that do not parse as an IP address are skipped.
//
// The key is an approximation: clients behind one NAT share a key and
// X-Forwarded-For can be forged when no proxy overwrites it.
type Resolver struct {
	PlatformHeader string
}

// Resolve returns the client key for r. It never fails.
func (res Resolver) Resolve(r *http.Request) string {
	if ip, ok := res.platformAddr(r); ok {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}

	return AnonymousKey
}

func (res Resolver) platformAddr(r *http.Request) (string, bool) {
	if res.PlatformHeader != "" {
		return parseIP(r.Header.Get(res.PlatformHeader))
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parseIP(host)
}

func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
