package ratelimit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	internalsettings "github.com/router-for-me/adminpanel/internal/settings"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "k", 3, time.Minute, base.Add(time.Duration(i)*time.Second))
		if err != nil || !res.Allowed {
			t.Fatalf("expected attempt %d to pass, got %+v err=%v", i+1, res, err)
		}
	}
	res, _ := l.Allow(ctx, "k", 3, time.Minute, base.Add(10*time.Second))
	if res.Allowed {
		t.Fatalf("expected fourth attempt in window to be rejected")
	}
	if !res.Reset.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected reset at %s, got %s", base.Add(time.Minute), res.Reset)
	}
	res, _ = l.Allow(ctx, "k", 3, time.Minute, base.Add(time.Minute))
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("expected next window to reset the counter, got %+v", res)
	}
	res, _ = l.Allow(ctx, "other", 3, time.Minute, base.Add(10*time.Second))
	if !res.Allowed {
		t.Fatalf("expected keys to be counted independently")
	}
}

func TestZeroLimitDisables(t *testing.T) {
	m := NewManager(func() SettingsConfig { return SettingsConfig{} }, nil, nil)
	for i := 0; i < 50; i++ {
		res, err := m.Allow(context.Background(), "k", Rule{Limit: 0, Window: time.Minute})
		if err != nil || !res.Allowed {
			t.Fatalf("expected disabled rule to allow, got %+v err=%v", res, err)
		}
	}
}

func TestCheckUsesAuthRuleFromStore(t *testing.T) {
	store := internalsettings.NewStore(nil)
	store.Replace(time.Now(), map[string]json.RawMessage{
		internalsettings.AuthRateLimitKey:              json.RawMessage(`2`),
		internalsettings.AuthRateLimitWindowSecondsKey: json.RawMessage(`"30"`),
	})
	cfg := LoadSettingsConfig(store)
	if cfg.AuthLimit != 2 || cfg.AuthWindow != 30*time.Second {
		t.Fatalf("expected 2 per 30s, got %d per %s", cfg.AuthLimit, cfg.AuthWindow)
	}

	m := NewManager(StoreProvider(store), nil, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if res, _ := m.Check(ctx, ScopeLogin, "10.0.0.1"); !res.Allowed {
			t.Fatalf("expected attempt %d to pass", i+1)
		}
	}
	if res, _ := m.Check(ctx, ScopeLogin, "10.0.0.1"); res.Allowed {
		t.Fatalf("expected third login attempt to be limited")
	}
	if res, _ := m.Check(ctx, ScopePasswordReset, "10.0.0.1"); !res.Allowed {
		t.Fatalf("expected scopes to be limited independently")
	}
}

func TestLoadSettingsConfigDefaults(t *testing.T) {
	cfg := LoadSettingsConfig(nil)
	if cfg.AuthLimit != internalsettings.DefaultAuthRateLimit {
		t.Fatalf("expected default limit, got %d", cfg.AuthLimit)
	}
	if cfg.RedisPrefix != internalsettings.DefaultRateLimitRedisPrefix {
		t.Fatalf("expected default prefix, got %q", cfg.RedisPrefix)
	}
}

func TestRedisFailureTripsBreakerAndFallsBack(t *testing.T) {
	clients := 0
	factory := func(options *redis.Options) *redis.Client {
		clients++
		options.DialTimeout = 200 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	}
	provider := func() SettingsConfig {
		return SettingsConfig{RedisEnabled: true, RedisAddr: "127.0.0.1:1"}
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(provider, func() time.Time { return now }, factory)
	rule := Rule{Limit: 1, Window: time.Minute}
	ctx := context.Background()

	res, err := m.Allow(ctx, "k", rule)
	if err != nil || !res.Allowed {
		t.Fatalf("expected memory fallback to allow, got %+v err=%v", res, err)
	}
	if !m.isBreakerActive(now) {
		t.Fatalf("expected breaker to be active after redis failure")
	}
	res, _ = m.Allow(ctx, "k", rule)
	if res.Allowed {
		t.Fatalf("expected memory limiter to enforce the rule")
	}
	if clients != 1 {
		t.Fatalf("expected breaker to skip redis, got %d client builds", clients)
	}
	if m.isBreakerActive(now.Add(redisBreakerDuration)) {
		t.Fatalf("expected breaker to expire")
	}
}

func TestKeyFor(t *testing.T) {
	if got := KeyFor(ScopeLogin, " 1.2.3.4 "); got != "auth:login:1.2.3.4" {
		t.Fatalf("expected auth:login:1.2.3.4, got %q", got)
	}
	if got := KeyFor(ScopeLogin, ""); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
