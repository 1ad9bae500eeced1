package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL       string        `env:"DATABASE_URL,required" validate:"required"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS"          envDefault:"25" validate:"min=1"`
	DBMinConns        int32         `env:"DB_MIN_CONNS"          envDefault:"5"  validate:"min=0,ltefield=DBMaxConns"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME"  envDefault:"1h" validate:"min=1m"`

	// OTP_STORE=memory keeps codes in process; use redis when running more than one replica.
	OTPStore string `env:"OTP_STORE" envDefault:"memory" validate:"oneof=memory redis"`
	RedisURL string `env:"REDIS_URL"                       validate:"required_if=OTPStore redis"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret           string        `env:"JWT_SECRET,required"   validate:"required,min=32"`
	JWTTTL              time.Duration `env:"JWT_TTL"               envDefault:"24h" validate:"min=1m"`
	JWTIssuer           string        `env:"JWT_ISSUER"            envDefault:"school-auth"`
	PasswordResetSecret string        `env:"PASSWORD_RESET_SECRET" validate:"omitempty,min=32"`
	BcryptCost          int           `env:"BCRYPT_COST"           envDefault:"12" validate:"min=4,max=31"`

	ResendAPIKey string        `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string        `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	MailTimeout  time.Duration `env:"MAIL_TIMEOUT"   envDefault:"10s" validate:"min=1s"`

	LoginURL         string `env:"LOGIN_URL"          envDefault:"http://localhost:3000/login"          validate:"url"`
	ResetPasswordURL string `env:"RESET_PASSWORD_URL" envDefault:"http://localhost:3000/reset-password" validate:"url"`
	SupportEmail     string `env:"SUPPORT_EMAIL"      envDefault:"support@example.com"                  validate:"email"`

	ReaperSchedule   string        `env:"REAPER_SCHEDULE"    envDefault:"*/15 * * * *" validate:"required"`
	PendingTenantTTL time.Duration `env:"PENDING_TENANT_TTL" envDefault:"1h"           validate:"min=1m"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL to a slog.Level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
