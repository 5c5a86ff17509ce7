// Package ratelimit throttles unauthenticated auth endpoints per client.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Rule is a limit of Limit requests per Window. A zero Limit disables limiting.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Scope names the endpoint family a limit applies to.
type Scope string

const (
	ScopeLogin         Scope = "login"
	ScopeFailedLogin   Scope = "failed_login"
	ScopePasswordReset Scope = "password_reset"
	ScopeVerification  Scope = "verification"
	ScopeInvite        Scope = "invite"
)

// windowBounds returns the index of the window containing now and its end.
func windowBounds(now time.Time, window time.Duration) (int64, time.Time) {
	idx := now.UnixNano() / int64(window)
	return idx, time.Unix(0, (idx+1)*int64(window)).UTC()
}
