// Package config loads process configuration from environment variables.
//
// Every variable has a default, so an empty environment yields a working
// single-process setup backed by SQLite. Load never fails; malformed values
// are remembered and reported by Validate, which must be called before the
// configuration is used.
//
// Environment Variables:
//
// Logging:
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_FILE: rotated log file; stdout when empty
//   - LOG_MAX_SIZE_MB: size before rotation (default: 100)
//   - LOG_MAX_BACKUPS: rotated files kept (default: 3)
//   - LOG_MAX_AGE_DAYS: days rotated files are kept (default: 7)
//
// Token store:
//   - STORE_TYPE: memory, sqlite, postgres or redis (default: sqlite)
//   - DATABASE_PATH: SQLite database file (default: ./oauth2_client.db)
//   - POSTGRES_HOST, POSTGRES_PORT (5432), POSTGRES_DB (oauth2_client),
//     POSTGRES_USER (postgres), POSTGRES_PASSWORD, POSTGRES_SSL_MODE (disable)
//   - REDIS_ADDRESS (localhost:6379), REDIS_PASSWORD, REDIS_DB (0),
//     REDIS_POOL_SIZE (10)
//   - CONFIG_ENCRYPTION_KEY: encrypts client secrets and tokens at rest in
//     the SQL stores when set
//   - APPLICATIONS_FILE: YAML application registry imported at startup
//   - APPLICATION_CACHE_TTL: in-process application lookup cache (default:
//     30s, 0 disables)
//
// Containment:
//   - TOKEN_HTTP_TIMEOUT: token endpoint timeout (default: 30s)
//   - REQUEST_HTTP_TIMEOUT: resource server timeout (default: 30s)
//   - TOKEN_BREAKER_MAX_FAILURES: token endpoint trip threshold (default: 3)
//   - REQUEST_BREAKER_MAX_FAILURES: request trip threshold (default: 2)
//   - BREAKER_RESET_TIMEOUT: open breaker cool-down (default: 10s)
//   - REAUTH_FUSE_WINDOW: minimum spacing between re-authentications per
//     application (default: 10s, 0 disables the fuse)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven setting.
type Config struct {
	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Token store selection
	StoreType    string
	DatabasePath string

	// PostgreSQL
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	EncryptionKey       string
	ApplicationsFile    string
	ApplicationCacheTTL time.Duration

	// Containment
	TokenHTTPTimeout          time.Duration
	RequestHTTPTimeout        time.Duration
	TokenBreakerMaxFailures   int
	RequestBreakerMaxFailures int
	BreakerResetTimeout       time.Duration
	ReauthFuseWindow          time.Duration

	// parse failures found by Load, reported by Validate
	problems []string
}

// Load reads the configuration from the environment. It does not validate.
func Load() *Config {
	l := &loader{}

	cfg := &Config{
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  l.int("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: l.int("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: l.int("LOG_MAX_AGE_DAYS", 7),

		StoreType:    strings.ToLower(getEnv("STORE_TYPE", "sqlite")),
		DatabasePath: getEnv("DATABASE_PATH", "./oauth2_client.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     l.int("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "oauth2_client"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       l.int("REDIS_DB", 0),
		RedisPoolSize: l.int("REDIS_POOL_SIZE", 10),

		EncryptionKey:       getEnv("CONFIG_ENCRYPTION_KEY", ""),
		ApplicationsFile:    getEnv("APPLICATIONS_FILE", ""),
		ApplicationCacheTTL: l.duration("APPLICATION_CACHE_TTL", 30*time.Second),

		TokenHTTPTimeout:          l.duration("TOKEN_HTTP_TIMEOUT", 30*time.Second),
		RequestHTTPTimeout:        l.duration("REQUEST_HTTP_TIMEOUT", 30*time.Second),
		TokenBreakerMaxFailures:   l.int("TOKEN_BREAKER_MAX_FAILURES", 3),
		RequestBreakerMaxFailures: l.int("REQUEST_BREAKER_MAX_FAILURES", 2),
		BreakerResetTimeout:       l.duration("BREAKER_RESET_TIMEOUT", 10*time.Second),
		ReauthFuseWindow:          l.duration("REAUTH_FUSE_WINDOW", 10*time.Second),
	}
	cfg.problems = l.problems

	return cfg
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type loader struct {
	problems []string
}

func (l *loader) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return parsed
}

// duration accepts Go duration strings ("10s", "1m30s") and bare seconds.
func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s must be a duration (e.g. '10s', '1m'), got %q", key, value))
		return defaultValue
	}
	return parsed
}

// Validate reports the first problem found in the configuration.
func (c *Config) Validate() error {
	if len(c.problems) > 0 {
		return fmt.Errorf("%s", c.problems[0])
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	switch c.StoreType {
	case "memory":
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres", "postgresql":
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	case "redis":
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when using Redis")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	default:
		return fmt.Errorf("STORE_TYPE must be one of memory, sqlite, postgres, redis")
	}

	if c.TokenHTTPTimeout <= 0 {
		return fmt.Errorf("TOKEN_HTTP_TIMEOUT must be positive")
	}
	if c.RequestHTTPTimeout <= 0 {
		return fmt.Errorf("REQUEST_HTTP_TIMEOUT must be positive")
	}
	if c.TokenBreakerMaxFailures < 1 {
		return fmt.Errorf("TOKEN_BREAKER_MAX_FAILURES must be a positive number")
	}
	if c.RequestBreakerMaxFailures < 1 {
		return fmt.Errorf("REQUEST_BREAKER_MAX_FAILURES must be a positive number")
	}
	if c.BreakerResetTimeout <= 0 {
		return fmt.Errorf("BREAKER_RESET_TIMEOUT must be positive")
	}
	if c.ApplicationCacheTTL < 0 {
		return fmt.Errorf("APPLICATION_CACHE_TTL must not be negative")
	}
	if c.ReauthFuseWindow < 0 {
		return fmt.Errorf("REAUTH_FUSE_WINDOW must not be negative")
	}

	if c.LogMaxSizeMB < 1 {
		return fmt.Errorf("LOG_MAX_SIZE_MB must be a positive number")
	}
	if c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0 {
		return fmt.Errorf("LOG_MAX_BACKUPS and LOG_MAX_AGE_DAYS must not be negative")
	}

	return nil
}

// IsPostgres reports whether STORE_TYPE selects PostgreSQL under either name.
func (c *Config) IsPostgres() bool {
	return c.StoreType == "postgres" || c.StoreType == "postgresql"
}
