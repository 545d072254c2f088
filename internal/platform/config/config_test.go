package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("LEAVE_ACCRUAL_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "neon.db", cfg.SQLitePath)
	assert.Equal(t, 24*time.Hour, cfg.LeaveAccrualInterval)
	assert.Equal(t, 30*time.Second, cfg.PendingCountTTL)
	assert.Equal(t, "en", cfg.DefaultLocale)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://localhost/neon")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PENDING_COUNT_TTL", "2m")
	t.Setenv("LEAVE_ACCRUAL_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.PendingCountTTL)
	assert.Equal(t, 24*time.Hour, cfg.LeaveAccrualInterval)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: DriverPostgres, DatabaseURL: "postgres://x", MaxBodyBytes: 4096, RateLimitPerMinute: 10}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"missing database url": func(c *Config) { c.DatabaseURL = "" },
		"unknown driver":       func(c *Config) { c.StoreDriver = "mysql" },
		"sqlite in production": func(c *Config) { c.StoreDriver = DriverSQLite; c.SQLitePath = "x.db"; c.Environment = EnvProduction; c.JWTSecret = "s" },
		"prod without secret":  func(c *Config) { c.Environment = EnvProduction },
		"tiny body limit":      func(c *Config) { c.MaxBodyBytes = 10 },
		"zero rate limit":      func(c *Config) { c.RateLimitPerMinute = 0 },
		"email without host":   func(c *Config) { c.Email.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
