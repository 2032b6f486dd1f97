package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName = "refreshToken"
	// RefreshCookiePath scopes the cookie to the refresh/logout endpoints.
	RefreshCookiePath = "/auth"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// RateRequests per RateWindow per client IP across every /auth route.
	RateRequests int
	RateWindow   time.Duration

	CookieDomain string
	CookieSecure bool
}

// DefaultConfig returns the production-shaped defaults with insecure cookies.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 1 << 20,
		RateRequests: 20,
		RateWindow:   15 * time.Minute,
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
//
// Cookies default to Secure when PREDIXA_ENV=production.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	production := strings.EqualFold(strings.TrimSpace(os.Getenv("PREDIXA_ENV")), "production")

	cfg := Config{
		TrustProxy:   envBool("PREDIXA_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("PREDIXA_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		RateRequests: envInt("PREDIXA_AUTH_RATE_REQUESTS", def.RateRequests),
		RateWindow:   envDuration("PREDIXA_AUTH_RATE_WINDOW", def.RateWindow),
		CookieDomain: strings.TrimSpace(os.Getenv("PREDIXA_AUTH_COOKIE_DOMAIN")),
		CookieSecure: envBool("PREDIXA_AUTH_COOKIE_SECURE", production),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.RateRequests <= 0 {
		cfg.RateRequests = def.RateRequests
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}

	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
