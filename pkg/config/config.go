// Package config loads application configuration from environment
// variables. Every variable carries the TENANCY_ prefix; values not set
// fall back to development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database postgres.Config

	// Redis configuration (rate limiting)
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// Invitation configuration
	Invitations InvitationConfig

	// Mail configuration
	Mail MailConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Public base URL used in invitation accept links
	BaseURL string

	CORSAllowedOrigins []string
}

// RedisConfig holds Redis connection settings. URL empty disables the
// distributed rate limiter (it fails open).
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// AuthConfig holds session and preference cookie settings
type AuthConfig struct {
	// JWTSecret signs session tokens and the active-organization
	// preference cookie.
	JWTSecret string

	// PreferenceCookieName is the cookie carrying the active-organization
	// preference.
	PreferenceCookieName string

	// PreferenceCookieTTL is how long the preference cookie lives.
	PreferenceCookieTTL time.Duration

	// CookieSecure sets the Secure flag on issued cookies.
	CookieSecure bool
}

// InvitationConfig holds invitation lifecycle settings
type InvitationConfig struct {
	// TTL is how long an invitation stays acceptable.
	TTL time.Duration

	// SweepSchedule is the cron expression for the expiry sweeper.
	SweepSchedule string

	// PublicRateLimit is requests per minute per client for the
	// unauthenticated lookup/accept endpoints.
	PublicRateLimit int
}

// MailConfig holds SMTP settings. Addr empty selects the log mailer.
type MailConfig struct {
	SMTPAddr string
	From     string
	Username string
	Password string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Invitations:   loadInvitationConfig(),
		Mail:          loadMailConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("TENANCY_HOST", "0.0.0.0"),
		Port:               getEnv("TENANCY_PORT", "8080"),
		ReadTimeout:        getEnvDuration("TENANCY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("TENANCY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("TENANCY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("TENANCY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:         getEnv("TENANCY_HEALTH_PORT", "9090"),
		BaseURL:            getEnv("TENANCY_BASE_URL", "http://localhost:8080"),
		CORSAllowedOrigins: splitAndTrim(getEnv("TENANCY_CORS_ALLOWED_ORIGINS", "")),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() postgres.Config {
	cfg := postgres.DefaultConfig()

	if pgURL := getEnv("TENANCY_POSTGRES_URL", ""); pgURL != "" {
		cfg.URL = pgURL
	}
	if maxConns := getEnvInt("TENANCY_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxOpenConns = maxConns
	}
	if idleConns := getEnvInt("TENANCY_POSTGRES_MAX_IDLE_CONNS", 0); idleConns > 0 {
		cfg.MaxIdleConns = idleConns
	}
	if lifetime := getEnvDuration("TENANCY_POSTGRES_CONN_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}
	if timeout := getEnvDuration("TENANCY_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.ConnectTimeout = timeout
	}

	return cfg
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("TENANCY_REDIS_URL", ""),
		Password: getEnv("TENANCY_REDIS_PASSWORD", ""),
		DB:       getEnvInt("TENANCY_REDIS_DB", 0),
		PoolSize: getEnvInt("TENANCY_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:            getEnv("TENANCY_JWT_SECRET", ""),
		PreferenceCookieName: getEnv("TENANCY_PREFERENCE_COOKIE_NAME", "tenancy_active_org"),
		PreferenceCookieTTL:  getEnvDuration("TENANCY_PREFERENCE_COOKIE_TTL", 365*24*time.Hour),
		CookieSecure:         getEnvBool("TENANCY_COOKIE_SECURE", false),
	}
}

// loadInvitationConfig loads invitation configuration from environment
func loadInvitationConfig() InvitationConfig {
	return InvitationConfig{
		TTL:             getEnvDuration("TENANCY_INVITATION_TTL", 7*24*time.Hour),
		SweepSchedule:   getEnv("TENANCY_INVITATION_SWEEP_SCHEDULE", "@hourly"),
		PublicRateLimit: getEnvInt("TENANCY_PUBLIC_RATE_LIMIT", 30),
	}
}

// loadMailConfig loads SMTP configuration from environment
func loadMailConfig() MailConfig {
	return MailConfig{
		SMTPAddr: getEnv("TENANCY_SMTP_ADDR", ""),
		From:     getEnv("TENANCY_SMTP_FROM", "no-reply@localhost"),
		Username: getEnv("TENANCY_SMTP_USERNAME", ""),
		Password: getEnv("TENANCY_SMTP_PASSWORD", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("TENANCY_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TENANCY_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Invitations.PublicRateLimit <= 0 {
		return fmt.Errorf("public rate limit must be positive")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// splitAndTrim splits a comma-separated list, dropping empty entries
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
