package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken   string
	DatabaseURL     string
	RecipientChatID int64 // chat that receives fired reminders
	LogLevel        string
	Environment     string

	// Reminder policy. The two product variants are expressed here:
	// MAX_ACTIVE_REMINDERS=1 + REPLACE_ON_CREATE=true is the single-message
	// variant; the default allows up to 5 concurrent reminders.
	MaxActiveReminders int
	ReplaceOnCreate    bool

	SnoozeIntervalMinutes  int
	CronSpecRecurringCheck string // cadence of the recurring-trigger check
	PushListenAddr         string // empty disables the push channel
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	chatIDStr := os.Getenv("RECIPIENT_CHAT_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("RECIPIENT_CHAT_ID is not set")
	}
	cfg.RecipientChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RECIPIENT_CHAT_ID: %w", err)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.MaxActiveReminders, err = intEnv("MAX_ACTIVE_REMINDERS", 5)
	if err != nil {
		return nil, err
	}
	if cfg.MaxActiveReminders < 1 {
		return nil, fmt.Errorf("MAX_ACTIVE_REMINDERS must be at least 1, got %d", cfg.MaxActiveReminders)
	}

	cfg.ReplaceOnCreate, err = boolEnv("REPLACE_ON_CREATE", false)
	if err != nil {
		return nil, err
	}

	cfg.SnoozeIntervalMinutes, err = intEnv("SNOOZE_INTERVAL_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	if cfg.SnoozeIntervalMinutes < 1 {
		return nil, fmt.Errorf("SNOOZE_INTERVAL_MINUTES must be at least 1, got %d", cfg.SnoozeIntervalMinutes)
	}

	cfg.CronSpecRecurringCheck = os.Getenv("CRON_SPEC_RECURRING_CHECK")
	if cfg.CronSpecRecurringCheck == "" {
		cfg.CronSpecRecurringCheck = "0 * * * *" // Default: hourly, on the hour
	}

	cfg.PushListenAddr = os.Getenv("PUSH_LISTEN_ADDR")

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
