package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr               string
	Environment        string
	StoreDriver        string
	DatabaseURL        string
	SQLitePath         string
	MigrationsDir      string
	RunMigrations      bool
	RunSeed            bool
	SeedTenantName     string
	JWTSecret          string
	AllowedOrigins     []string
	MaxBodyBytes       int64
	RateLimitPerMinute int

	Redis RedisConfig
	Log   LogConfig
	Email EmailConfig

	CachePendingCount    bool
	PendingCountTTL      time.Duration
	LeaveAccrualInterval time.Duration
	MetricsEnabled       bool
	DefaultLocale        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

type EmailConfig struct {
	Enabled  bool
	From     string
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	UseTLS   bool
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory layered underneath.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Addr:               v.GetString("APP_ADDR"),
		Environment:        v.GetString("APP_ENV"),
		StoreDriver:        strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		MigrationsDir:      v.GetString("MIGRATIONS_DIR"),
		RunMigrations:      v.GetBool("RUN_MIGRATIONS"),
		RunSeed:            v.GetBool("RUN_SEED"),
		SeedTenantName:     v.GetString("SEED_TENANT_NAME"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		AllowedOrigins:     splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		MaxBodyBytes:       v.GetInt64("MAX_BODY_BYTES"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Email: EmailConfig{
			Enabled:  v.GetBool("EMAIL_ENABLED"),
			From:     v.GetString("EMAIL_FROM"),
			SMTPHost: v.GetString("SMTP_HOST"),
			SMTPPort: v.GetInt("SMTP_PORT"),
			SMTPUser: v.GetString("SMTP_USER"),
			SMTPPass: v.GetString("SMTP_PASSWORD"),
			UseTLS:   v.GetBool("SMTP_USE_TLS"),
		},
		CachePendingCount:    v.GetBool("CACHE_ENABLED"),
		PendingCountTTL:      parseDuration(v.GetString("PENDING_COUNT_TTL"), 30*time.Second),
		LeaveAccrualInterval: parseDuration(v.GetString("LEAVE_ACCRUAL_INTERVAL"), 24*time.Hour),
		MetricsEnabled:       v.GetBool("METRICS_ENABLED"),
		DefaultLocale:        v.GetString("DEFAULT_LOCALE"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "neon.db")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("RUN_SEED", true)
	v.SetDefault("SEED_TENANT_NAME", "Default Tenant")
	v.SetDefault("MAX_BODY_BYTES", 1048576)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("EMAIL_FROM", "no-reply@example.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USE_TLS", true)
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("DEFAULT_LOCALE", "en")
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
		if c.Environment == EnvProduction {
			return fmt.Errorf("STORE_DRIVER sqlite is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or sqlite, got %q", c.StoreDriver)
	}
	if c.Environment == EnvProduction && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.Email.Enabled && c.Email.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
