package session

import (
	"os"
	"strings"
	"time"
)

const (
	// DefaultAccessTokenTTL and DefaultRefreshTokenTTL are the policy lifetimes.
	DefaultAccessTokenTTL  = 10 * time.Minute
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour

	// MinSecretBytes is the minimum HS256 secret length accepted.
	MinSecretBytes = 32
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is set as "iss" on every token and required on verify.
	Issuer string

	// AccessSecret signs access tokens; RefreshSecret signs refresh tokens.
	// They must differ so a leak of one cannot forge the other.
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew is the leeway applied to exp/iat/nbf during verification.
	ClockSkew time.Duration
}

// DefaultConfig returns the policy defaults. Secrets are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Issuer:          "predixa",
		AccessTokenTTL:  DefaultAccessTokenTTL,
		RefreshTokenTTL: DefaultRefreshTokenTTL,
	}
}

// Validate enforces secret and TTL invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return ErrConfig
	}
	if len(c.AccessSecret) < MinSecretBytes || len(c.RefreshSecret) < MinSecretBytes {
		return ErrConfig
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	// Rotation relies on access << refresh.
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return ErrConfig
	}
	if c.ClockSkew < 0 {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - PREDIXA_JWT_ACCESS_SECRET (>= 32 bytes)
//   - PREDIXA_JWT_REFRESH_SECRET (>= 32 bytes, different from the access secret)
//
// Optional (durations must be valid Go duration strings):
//   - PREDIXA_AUTH_ISSUER
//   - PREDIXA_AUTH_ACCESS_TTL
//   - PREDIXA_AUTH_REFRESH_TTL
//   - PREDIXA_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("PREDIXA_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("PREDIXA_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("PREDIXA_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("PREDIXA_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.AccessSecret = []byte(strings.TrimSpace(os.Getenv("PREDIXA_JWT_ACCESS_SECRET")))
	cfg.RefreshSecret = []byte(strings.TrimSpace(os.Getenv("PREDIXA_JWT_REFRESH_SECRET")))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
