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

// ErrMissingCredential is returned when the relay access token is not set.
var ErrMissingCredential = errors.New("PUSHBULLET_API_KEY is not set")

// Config holds all settings. Values come from the environment, optionally
// seeded from a .env file.
type Config struct {
	// Relay
	PushbulletAPIKey    string
	PushbulletStreamURL string
	PushbulletAPIURL    string

	// Storage
	DatabasePath string

	// HTTP
	HTTPAddr string

	// Popups
	MaxPopups              int
	AutoCloseDelay         time.Duration
	PopupPosition          string
	HideTransactionDetails bool
	ScreenWidth            int
	ScreenHeight           int

	// Telegram surface, optional
	TelegramBotToken string
	TelegramChatID   int64

	WatchdogSchedule string
	StatsSchedule    string
	LogLevel         string
}

// Load reads a .env file when one exists and then the environment.
// Missing credentials are not an error here; see RequireRelay.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := &Config{
		PushbulletAPIKey:    strings.TrimSpace(os.Getenv("PUSHBULLET_API_KEY")),
		PushbulletStreamURL: getEnv("PUSHBULLET_STREAM_URL", "wss://stream.pushbullet.com/websocket/"),
		PushbulletAPIURL:    getEnv("PUSHBULLET_API_URL", "https://api.pushbullet.com/v2"),

		DatabasePath: getEnv("DATABASE_PATH", "transactions.db"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),

		PopupPosition:    getEnv("POPUP_POSITION", "top-right"),
		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),

		WatchdogSchedule: getEnv("RELAY_WATCHDOG_SCHEDULE", "@every 1m"),
		StatsSchedule:    getEnv("STATS_SCHEDULE", "0 21 * * *"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MaxPopups, err = getEnvAsInt("MAX_POPUPS", 4); err != nil {
		return nil, err
	}
	if cfg.AutoCloseDelay, err = getEnvAsDuration("AUTO_CLOSE_DELAY", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HideTransactionDetails, err = getEnvAsBool("HIDE_TRANSACTION_DETAILS", false); err != nil {
		return nil, err
	}
	if cfg.ScreenWidth, err = getEnvAsInt("SCREEN_WIDTH", 1920); err != nil {
		return nil, err
	}
	if cfg.ScreenHeight, err = getEnvAsInt("SCREEN_HEIGHT", 1080); err != nil {
		return nil, err
	}
	chatID, err := getEnvAsInt("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}
	cfg.TelegramChatID = int64(chatID)

	if cfg.MaxPopups < 1 {
		return nil, fmt.Errorf("MAX_POPUPS must be at least 1, got %d", cfg.MaxPopups)
	}
	if cfg.AutoCloseDelay < 0 {
		return nil, fmt.Errorf("AUTO_CLOSE_DELAY must not be negative")
	}
	return cfg, nil
}

// RequireRelay fails when the relay credential is missing.
func (c *Config) RequireRelay() error {
	if c.PushbulletAPIKey == "" {
		return ErrMissingCredential
	}
	return nil
}

// TelegramEnabled reports whether both Telegram settings are present.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s (%q): %w", key, valueStr, err)
	}
	return value, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s (%q): %w", key, valueStr, err)
	}
	return value, nil
}

// getEnvAsDuration accepts Go durations ("5m") or plain milliseconds ("300000").
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return fallback, nil
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s (%q): %w", key, valueStr, err)
	}
	return value, nil
}
