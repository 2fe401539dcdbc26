package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	StoreBackend string // memory, postgres or redis
	DatabaseURL  string
	RedisURL     string

	AllowanceAmount  int64
	MaxCommitRetries int
	RetryBaseDelay   time.Duration
	NotifyTimeout    time.Duration
	BcryptCost       int
	Currency         string

	ApprovalWebhookURL string
	WebhookSecret      string
	AdminToken         string
}

// LoadConfig reads the .env file and returns a Config struct
func LoadConfig() *Config {
	// The file might not exist in production, which is fine.
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on System Env Variables")
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() *Config {
	return &Config{
		Port:     getEnv("PORT", "3000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "memory")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),

		AllowanceAmount:  getInt64("ALLOWANCE_AMOUNT", 50000),
		MaxCommitRetries: int(getInt64("MAX_COMMIT_RETRIES", 16)),
		RetryBaseDelay:   getDuration("RETRY_BASE_DELAY", 2*time.Millisecond),
		NotifyTimeout:    getDuration("NOTIFY_TIMEOUT", 250*time.Millisecond),
		BcryptCost:       int(getInt64("BCRYPT_COST", 10)),
		Currency:         getEnv("CURRENCY_CODE", "SFN"),

		ApprovalWebhookURL: getEnv("APPROVAL_WEBHOOK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
	}
}

// Helper to get env with a default fallback. Empty values count as unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("Invalid integer in env, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in env, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
