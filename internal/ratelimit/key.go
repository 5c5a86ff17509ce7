package ratelimit

import "strings"

// KeyFor builds a limiter key for a scope and client address.
func KeyFor(scope Scope, clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if scope == "" || clientIP == "" {
		return ""
	}
	return "auth:" + string(scope) + ":" + clientIP
}
