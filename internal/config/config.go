// Package config loads runtime settings from the environment (and an optional .env file).
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

type Config struct {
	// Storage
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// HTTP surfaces
	HTTPAddr   string
	CronSecret string
	AdminToken string

	// Refresh cycle
	RefreshSchedule   string // cron spec for the in-process automatic trigger, empty disables it
	RefreshCooldown   time.Duration
	FetchTimeout      time.Duration
	FetchHostInterval time.Duration
	SourcesConfigPath string

	// Translation
	TranslateProvider   string // google | openai | gemini | chain
	GoogleTranslateURL  string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	GeminiAPIKey        string
	TranslateTimeout    time.Duration
	TranslateBatch      int
	TranslateInterval   time.Duration
	TranslateDailyLimit int
	GoogleDailyLimit    int
	OpenAIDailyLimit    int
	GeminiDailyLimit    int
	TranslateRetries    int
	TranslateCacheTTL   time.Duration

	// Alerts
	TelegramToken  string
	TelegramChatID string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validDrivers   = []string{"postgres", "sqlite"}
	validProviders = []string{"google", "openai", "gemini", "chain"}
)

// Load reads .env (if present) and the environment, applies defaults and validates.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := Default()

	cfg.DatabaseDriver = getEnvOrDefault("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.CronSecret = os.Getenv("CRON_SECRET")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	if v, ok := os.LookupEnv("REFRESH_SCHEDULE"); ok {
		cfg.RefreshSchedule = strings.TrimSpace(v)
	}
	cfg.RefreshCooldown = getEnvDurationOrDefault("REFRESH_COOLDOWN", cfg.RefreshCooldown)
	cfg.FetchTimeout = getEnvDurationOrDefault("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchHostInterval = getEnvDurationOrDefault("FETCH_HOST_INTERVAL", cfg.FetchHostInterval)
	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG", cfg.SourcesConfigPath)

	cfg.TranslateProvider = strings.ToLower(getEnvOrDefault("TRANSLATE_PROVIDER", cfg.TranslateProvider))
	cfg.GoogleTranslateURL = os.Getenv("GOOGLE_TRANSLATE_URL")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.TranslateTimeout = getEnvDurationOrDefault("TRANSLATE_TIMEOUT", cfg.TranslateTimeout)
	cfg.TranslateBatch = getEnvIntOrDefault("TRANSLATE_BATCH", cfg.TranslateBatch)
	cfg.TranslateInterval = getEnvDurationOrDefault("TRANSLATE_INTERVAL", cfg.TranslateInterval)
	cfg.TranslateDailyLimit = getEnvIntOrDefault("TRANSLATE_DAILY_LIMIT", cfg.TranslateDailyLimit)
	cfg.GoogleDailyLimit = getEnvIntOrDefault("GOOGLE_DAILY_LIMIT", cfg.GoogleDailyLimit)
	cfg.OpenAIDailyLimit = getEnvIntOrDefault("OPENAI_DAILY_LIMIT", cfg.OpenAIDailyLimit)
	cfg.GeminiDailyLimit = getEnvIntOrDefault("GEMINI_DAILY_LIMIT", cfg.GeminiDailyLimit)
	cfg.TranslateRetries = getEnvIntOrDefault("TRANSLATE_RETRIES", cfg.TranslateRetries)
	cfg.TranslateCacheTTL = getEnvDurationOrDefault("TRANSLATE_CACHE_TTL", cfg.TranslateCacheTTL)

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	return cfg, cfg.Validate()
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DatabaseDriver:    "sqlite",
		DatabaseURL:       "file:sarawaknews.db",
		HTTPAddr:          ":8080",
		RefreshSchedule:   "*/15 * * * *",
		RefreshCooldown:   10 * time.Minute,
		FetchTimeout:      10 * time.Second,
		FetchHostInterval: time.Second,
		SourcesConfigPath: "configs/sources.yaml",
		TranslateProvider: "google",
		TranslateTimeout:  15 * time.Second,
		TranslateBatch:    100,
		TranslateInterval: 500 * time.Millisecond,
		TranslateRetries:  2,
		TranslateCacheTTL: 24 * time.Hour,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	var errs []error

	if !contains(validDrivers, c.DatabaseDriver) {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be one of %s", strings.Join(validDrivers, ", ")))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if !contains(validProviders, c.TranslateProvider) {
		errs = append(errs, fmt.Errorf("TRANSLATE_PROVIDER must be one of %s", strings.Join(validProviders, ", ")))
	}
	if c.TranslateProvider == "openai" && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
	}
	if c.TranslateProvider == "gemini" && c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
	}
	if c.RefreshCooldown <= 0 {
		errs = append(errs, errors.New("REFRESH_COOLDOWN must be positive"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.TranslateTimeout <= 0 {
		errs = append(errs, errors.New("TRANSLATE_TIMEOUT must be positive"))
	}
	if c.TranslateBatch <= 0 {
		errs = append(errs, errors.New("TRANSLATE_BATCH must be positive"))
	}
	if c.TranslateInterval < 0 {
		errs = append(errs, errors.New("TRANSLATE_INTERVAL must not be negative"))
	}
	if c.TranslateDailyLimit < 0 || c.GoogleDailyLimit < 0 || c.OpenAIDailyLimit < 0 || c.GeminiDailyLimit < 0 {
		errs = append(errs, errors.New("daily translation limits must not be negative"))
	}
	if c.TranslateRetries < 1 {
		errs = append(errs, errors.New("TRANSLATE_RETRIES must be at least 1"))
	}
	if c.TelegramToken != "" && c.TelegramChatID == "" {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set"))
	}

	return errors.Join(errs...)
}

// AlertsEnabled reports whether Telegram alerting is configured.
func (c *Config) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// ProviderDailyLimit returns the daily call cap for a translation provider,
// 0 when uncapped.
func (c *Config) ProviderDailyLimit(provider string) int {
	switch provider {
	case "google":
		return c.GoogleDailyLimit
	case "openai":
		return c.OpenAIDailyLimit
	case "gemini":
		return c.GeminiDailyLimit
	}
	return 0
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
