package server

import (
	"net"
	"net/http"
	"strings"
)

// clientIP derives the requester's network identity from the trusted
// forwarding header, honoring trustProxyHops (the number of reverse
// proxies between the internet and this process that are trusted to
// append exactly one hop each to X-Forwarded-For). Per spec.md §6, if
// restrictions are enabled the operator MUST set this correctly or the
// derived identity is spoofable by the client itself.
func clientIP(r *http.Request, trustProxyHops int) string {
	if trustProxyHops > 0 {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			idx := len(parts) - trustProxyHops
			if idx >= 0 && idx < len(parts) {
				return parts[idx]
			}
			return parts[0]
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
