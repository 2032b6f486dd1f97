package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// User directory implementations selectable through PREDIXA_USER_STORE.
const (
	UserStoreDemo     = "demo"
	UserStorePostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	// UserStore selects the identity.Directory implementation. There is no runtime
	// fallback between the two.
	UserStore    string
	DemoPassword string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, PREDIXA_TOKEN_HMAC_KEY must be set (>= 32 bytes) and refresh-token
	// digests are HMAC-based.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	dbURL := EnvString("PREDIXA_DATABASE_URL", "")
	defaultStore := UserStoreDemo
	if dbURL != "" {
		defaultStore = UserStorePostgres
	}

	return Config{
		Env:      EnvString("PREDIXA_ENV", "development"),
		HTTPAddr: EnvString("PREDIXA_HTTP_ADDR", "0.0.0.0:3001"),

		LogLevel:  EnvString("PREDIXA_LOG_LEVEL", "info"),
		LogFormat: EnvString("PREDIXA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PREDIXA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PREDIXA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PREDIXA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PREDIXA_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("PREDIXA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: dbURL,
		DBSchema:    EnvString("PREDIXA_DB_SCHEMA", "public"),
		DBMaxConns:  EnvInt32("PREDIXA_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PREDIXA_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("PREDIXA_DB_MIGRATE", false),

		UserStore:    strings.ToLower(EnvString("PREDIXA_USER_STORE", defaultStore)),
		DemoPassword: EnvString("PREDIXA_DEMO_PASSWORD", "demo-plant-42"),

		ReadinessRequireDB: EnvBool("PREDIXA_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("PREDIXA_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("PREDIXA_CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		CORSAllowCredentials: EnvBool("PREDIXA_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("PREDIXA_CORS_MAX_AGE", 600),
	}
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	switch c.UserStore {
	case UserStoreDemo:
	case UserStorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: PREDIXA_USER_STORE=postgres requires PREDIXA_DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown PREDIXA_USER_STORE %q (want demo or postgres)", c.UserStore)
	}

	if c.DBMigrate && c.DatabaseURL == "" {
		return errors.New("config: PREDIXA_DB_MIGRATE requires PREDIXA_DATABASE_URL")
	}
	if c.UserStore == UserStoreDemo && strings.TrimSpace(c.DemoPassword) == "" {
		return errors.New("config: PREDIXA_DEMO_PASSWORD must not be empty")
	}
	for _, o := range c.CORSAllowedOrigins {
		if o == "*" && c.CORSAllowCredentials {
			return errors.New("config: wildcard CORS origin cannot be combined with credentials")
		}
	}
	return nil
}

// Production reports whether PREDIXA_ENV is production.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}
