package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only accepted in the development environment.
const DefaultJWTSecret = "dev-secret"

const minSecretLength = 32

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Limits       LimitsConfig
	Notification NotificationConfig
	Seed         SeedConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token signing and lifetime parameters.
type AuthConfig struct {
	JWTSecret               string
	JWTIssuer               string
	AccessTokenTTLMinutes   int
	RefreshTokenTTLHours    int
	PasswordResetTTLMinutes int
	BcryptCost              int
	UpstreamTimeoutSeconds  int
}

// LimitsConfig holds fixed-window throttles backed by Redis.
type LimitsConfig struct {
	LoginMaxAttempts   int
	LoginWindowSeconds int
	ResetMaxRequests   int
	ResetWindowSeconds int
}

// NotificationConfig holds outbound email settings.
type NotificationConfig struct {
	EmailFrom    string
	ResetURLBase string
}

// SeedConfig optionally creates one active user at startup, for local runs
// against the in-memory stores.
type SeedConfig struct {
	Name     string
	Email    string
	Password string
}

// Enabled reports whether a seed user is configured.
func (s SeedConfig) Enabled() bool {
	return s.Email != "" && s.Password != ""
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "training-auth"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", DefaultJWTSecret),
			JWTIssuer:               getEnv("AUTH_JWT_ISSUER", "training-auth"),
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHours:    getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 168),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 15),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 12),
			UpstreamTimeoutSeconds:  getEnvAsInt("AUTH_UPSTREAM_TIMEOUT_SECONDS", 5),
		},
		Limits: LimitsConfig{
			LoginMaxAttempts:   getEnvAsInt("LIMIT_LOGIN_MAX_ATTEMPTS", 10),
			LoginWindowSeconds: getEnvAsInt("LIMIT_LOGIN_WINDOW_SECONDS", 300),
			ResetMaxRequests:   getEnvAsInt("LIMIT_RESET_MAX_REQUESTS", 3),
			ResetWindowSeconds: getEnvAsInt("LIMIT_RESET_WINDOW_SECONDS", 900),
		},
		Notification: NotificationConfig{
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			ResetURLBase: getEnv("NOTIFY_RESET_URL_BASE", "http://localhost:3000/reset-password"),
		},
		Seed: SeedConfig{
			Name:     getEnv("SEED_USER_NAME", "Seed User"),
			Email:    os.Getenv("SEED_USER_EMAIL"),
			Password: os.Getenv("SEED_USER_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the token lifecycle cannot run with.
func (c *Config) Validate() error {
	var errs []error

	a := c.Auth
	if strings.TrimSpace(a.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if !c.App.IsDevelopment() {
		if a.JWTSecret == DefaultJWTSecret {
			errs = append(errs, errors.New("AUTH_JWT_SECRET must be overridden outside development"))
		} else if len(a.JWTSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", minSecretLength))
		}
	}
	if a.AccessTokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_TTL_MINUTES must be positive"))
	}
	if a.RefreshTokenTTLHours <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TOKEN_TTL_HOURS must be positive"))
	}
	if a.PasswordResetTTLMinutes <= 0 {
		errs = append(errs, errors.New("AUTH_PASSWORD_RESET_TTL_MINUTES must be positive"))
	}
	if a.AccessTokenTTLMinutes > 0 && a.RefreshTokenTTLHours > 0 && a.RefreshTokenTTL() <= a.AccessTokenTTL() {
		errs = append(errs, errors.New("refresh token TTL must exceed access token TTL"))
	}
	if a.UpstreamTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("AUTH_UPSTREAM_TIMEOUT_SECONDS must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the service runs in the development environment.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Env, "development")
}

// AccessTokenTTL returns the access token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// PasswordResetTTL returns the password reset grant lifetime.
func (a AuthConfig) PasswordResetTTL() time.Duration {
	return time.Duration(a.PasswordResetTTLMinutes) * time.Minute
}

// UpstreamTimeout bounds each call to the directory, updater and mailer.
func (a AuthConfig) UpstreamTimeout() time.Duration {
	return time.Duration(a.UpstreamTimeoutSeconds) * time.Second
}

// LoginWindow returns the login throttle window.
func (l LimitsConfig) LoginWindow() time.Duration {
	return time.Duration(l.LoginWindowSeconds) * time.Second
}

// ResetWindow returns the reset request throttle window.
func (l LimitsConfig) ResetWindow() time.Duration {
	return time.Duration(l.ResetWindowSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
