// Package httputil holds request helpers shared by the HTTP and stream layers.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request came from. With trustProxy set the
// leftmost parseable X-Forwarded-For entry wins, then X-Real-IP, then
// RemoteAddr. IPv4-mapped IPv6 addresses are reported in their IPv4 form.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for _, entry := range strings.Split(v, ",") {
				if addr, ok := parseAddr(entry); ok {
					return addr
				}
			}
		}
		if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
			return addr
		}
	}
	if addr, ok := parseAddr(r.RemoteAddr); ok {
		return addr
	}
	return r.RemoteAddr
}

// parseAddr accepts a bare address or host:port and normalizes it.
func parseAddr(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return "", false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
