package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB       DBConfig
	Server   ServerConfig
	Token    TokenConfig
	TOTP     TOTPConfig
	Recovery RecoveryConfig
	SMTP     SMTPConfig
	App      AppConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ServerConfig struct {
	Port string
}

// TokenConfig carries one secret per token class. Compromise of one signing
// key must not allow forging the other class.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TOTPConfig is passed into the TOTP engine as a plain value at construction
// time; there is no process-wide mutable TOTP state.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period uint
	Skew   uint
}

type RecoveryConfig struct {
	EmailVerifyTTL   time.Duration
	PasswordResetTTL time.Duration
	MFAChallengeTTL  time.Duration
	EncryptionSecret string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AppConfig struct {
	EmailVerifyURL   string
	PasswordResetURL string
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "fitlog"),
			Password: getEnv("DB_PASSWORD", "fitlog_secret"),
			Name:     getEnv("DB_NAME", "fitlog"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Token: TokenConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-access"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessTTL:     getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:    getEnvAsDuration("JWT_REFRESH_TTL", 720*time.Hour),
		},
		TOTP: TOTPConfig{
			Issuer: getEnv("TOTP_ISSUER", "Fitlog"),
			Digits: getEnvAsInt("TOTP_DIGITS", 6),
			Period: uint(getEnvAsInt("TOTP_PERIOD", 30)),
			Skew:   uint(getEnvAsInt("TOTP_SKEW", 1)),
		},
		Recovery: RecoveryConfig{
			EmailVerifyTTL:   getEnvAsDuration("EMAIL_VERIFY_TOKEN_TTL", 24*time.Hour),
			PasswordResetTTL: getEnvAsDuration("PASSWORD_RESET_TOKEN_TTL", 1*time.Hour),
			MFAChallengeTTL:  getEnvAsDuration("MFA_CHALLENGE_TTL", 5*time.Minute),
			EncryptionSecret: getEnv("SECRET_ENCRYPTION_KEY", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@fitlog.local"),
		},
		App: AppConfig{
			EmailVerifyURL:   getEnv("APP_EMAIL_VERIFY_URL", "http://localhost:3001/verify-email"),
			PasswordResetURL: getEnv("APP_PASSWORD_RESET_URL", "http://localhost:3001/reset-password"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
