package http

import (
	"net"
	"net/http"
	"strings"
)

// ExtractIP returns the client IP address from the request.
// It checks X-Forwarded-For first (taking the first IP if comma-separated),
// then falls back to X-Real-IP, and finally to RemoteAddr.
//
// Forwarding headers are trusted, so the proxy must sit behind a load balancer
// that overwrites them.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
