package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	DBAutoMigrate bool

	JWTSecret      []byte
	JWTIssuer      string
	MFASecret      []byte
	AccessTokenTTL time.Duration
	MFATokenTTL    time.Duration

	RefreshTokenTTL    time.Duration
	InactivityTTL      time.Duration
	MinRefreshInterval time.Duration
	ResetTokenTTL      time.Duration

	CookieDomain  string
	SecureCookies bool

	ResendAPIKey string
	EmailFrom    string
	AppBaseURL   string

	LogLevel logrus.Level
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}
	cfg := &Config{
		HTTPAddr:      env.text("HTTP_ADDR", ":8080"),
		DatabaseURL:   env.text("DATABASE_URL", ""),
		DBAutoMigrate: env.flag("DB_AUTO_MIGRATE", true),

		JWTSecret:      []byte(env.text("JWT_SECRET", "")),
		JWTIssuer:      env.text("JWT_ISSUER", "consultorio"),
		MFASecret:      []byte(env.text("MFA_JWT_SECRET", env.text("JWT_SECRET", ""))),
		AccessTokenTTL: env.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		MFATokenTTL:    env.duration("MFA_TOKEN_TTL", 5*time.Minute),

		RefreshTokenTTL:    env.duration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		InactivityTTL:      env.duration("SESSION_INACTIVITY_TTL", 30*24*time.Hour),
		MinRefreshInterval: env.duration("REFRESH_MIN_INTERVAL", 3*time.Second),
		ResetTokenTTL:      env.duration("RESET_TOKEN_TTL", 30*time.Minute),

		CookieDomain:  env.text("COOKIE_DOMAIN", ""),
		SecureCookies: env.flag("COOKIE_SECURE", true),

		ResendAPIKey: env.text("RESEND_API_KEY", ""),
		EmailFrom:    env.text("EMAIL_FROM", ""),
		AppBaseURL:   env.text("APP_BASE_URL", ""),

		LogLevel: env.logLevel("LOG_LEVEL", logrus.InfoLevel),
	}
	if len(env.errs) > 0 {
		return nil, errors.Join(env.errs...)
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (r *envReader) text(key string, fallback string) string {
	value := strings.TrimSpace(r.getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func (r *envReader) flag(key string, fallback bool) bool {
	value := strings.TrimSpace(r.getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return parsed
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(r.getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	if parsed <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: must be positive", key))
		return fallback
	}
	return parsed
}

func (r *envReader) logLevel(key string, fallback logrus.Level) logrus.Level {
	value := strings.TrimSpace(r.getenv(key))
	if value == "" {
		return fallback
	}
	level, err := logrus.ParseLevel(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return level
}
