package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the site name used in emails.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback site name.
	DefaultSiteName = "Admin Panel"
	// AuthRateLimitKey is the number of attempts allowed per window on public auth endpoints.
	AuthRateLimitKey = "AUTH_RATE_LIMIT"
	// AuthRateLimitWindowSecondsKey is the fixed window length for AuthRateLimitKey.
	AuthRateLimitWindowSecondsKey = "AUTH_RATE_LIMIT_WINDOW_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultAuthRateLimit is the fallback attempt count (0 means unlimited).
	DefaultAuthRateLimit = 10
	// DefaultAuthRateLimitWindowSeconds is the fallback window length.
	DefaultAuthRateLimitWindowSeconds = 60
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "adminpanel:rl"
)
