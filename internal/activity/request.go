package activity

import (
	"net/http"
	"strings"
)

// UnknownIP is stored when no client address can be derived from headers.
const UnknownIP = "unknown"

// ClientIP derives the requester address from forwarding headers:
// the first X-Forwarded-For value, else X-Real-IP, else UnknownIP.
func ClientIP(r *http.Request) string {
	if r == nil {
		return UnknownIP
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownIP
}

// UserAgent returns the request's User-Agent header.
func UserAgent(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.UserAgent()
}
