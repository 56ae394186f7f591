package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/tenancy/pkg/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Setenv("TENANCY_POSTGRES_URL", "postgres://localhost/tenancy?sslmode=disable")
	t.Setenv("TENANCY_JWT_SECRET", testSecret)
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "tenancy_active_org", cfg.Auth.PreferenceCookieName)
	assert.Equal(t, 365*24*time.Hour, cfg.Auth.PreferenceCookieTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, "@hourly", cfg.Invitations.SweepSchedule)
	assert.Equal(t, 30, cfg.Invitations.PublicRateLimit)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Mail.SMTPAddr)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TENANCY_PORT", "3000")
	t.Setenv("TENANCY_INVITATION_TTL", "48h")
	t.Setenv("TENANCY_PUBLIC_RATE_LIMIT", "5")
	t.Setenv("TENANCY_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TENANCY_LOG_LEVEL", "debug")
	t.Setenv("TENANCY_COOKIE_SECURE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, 5, cfg.Invitations.PublicRateLimit)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Auth.CookieSecure)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Server.Port = "8080"
		cfg.Server.HealthPort = "9090"
		cfg.Database.URL = "postgres://localhost/tenancy"
		cfg.Auth.JWTSecret = testSecret
		cfg.Invitations.TTL = 7 * 24 * time.Hour
		cfg.Invitations.PublicRateLimit = 30
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"missing postgres url", func(c *Config) { c.Database.URL = "" }, "postgres URL"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT secret is required"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "too-short" }, "at least 32"},
		{"equal ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"zero invitation ttl", func(c *Config) { c.Invitations.TTL = 0 }, "TTL must be positive"},
		{"zero rate limit", func(c *Config) { c.Invitations.PublicRateLimit = 0 }, "rate limit must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("nonsense"))
}
