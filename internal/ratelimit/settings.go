package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/router-for-me/adminpanel/internal/settings"
)

// SettingsConfig captures rate limit settings stored in the settings table.
type SettingsConfig struct {
	AuthLimit     int
	AuthWindow    time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// AuthRule returns the rule applied to unauthenticated auth endpoints.
func (c SettingsConfig) AuthRule() Rule {
	return Rule{Limit: c.AuthLimit, Window: c.AuthWindow}
}

// LoadSettingsConfig reads the current rate limit settings from store.
func LoadSettingsConfig(store *internalsettings.Store) SettingsConfig {
	cfg := SettingsConfig{
		AuthLimit:   internalsettings.DefaultAuthRateLimit,
		AuthWindow:  time.Duration(internalsettings.DefaultAuthRateLimitWindowSeconds) * time.Second,
		RedisPrefix: internalsettings.DefaultRateLimitRedisPrefix,
	}
	if store == nil {
		return cfg
	}

	cfg.AuthLimit = store.Int(internalsettings.AuthRateLimitKey, internalsettings.DefaultAuthRateLimit)
	windowSeconds := store.Int(internalsettings.AuthRateLimitWindowSecondsKey, internalsettings.DefaultAuthRateLimitWindowSeconds)
	if windowSeconds <= 0 {
		windowSeconds = internalsettings.DefaultAuthRateLimitWindowSeconds
	}
	cfg.AuthWindow = time.Duration(windowSeconds) * time.Second
	cfg.RedisEnabled = store.Bool(internalsettings.RateLimitRedisEnabledKey, false)
	cfg.RedisAddr = strings.TrimSpace(store.String(internalsettings.RateLimitRedisAddrKey, ""))
	cfg.RedisPassword = strings.TrimSpace(store.String(internalsettings.RateLimitRedisPasswordKey, ""))
	cfg.RedisDB = store.Int(internalsettings.RateLimitRedisDBKey, 0)
	cfg.RedisPrefix = strings.TrimSpace(store.String(internalsettings.RateLimitRedisPrefixKey, internalsettings.DefaultRateLimitRedisPrefix))
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return cfg
}

// StoreProvider adapts a settings store into a SettingsProvider.
func StoreProvider(store *internalsettings.Store) SettingsProvider {
	return func() SettingsConfig {
		return LoadSettingsConfig(store)
	}
}
