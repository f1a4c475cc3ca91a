package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PUSHBULLET_API_KEY", "MAX_POPUPS", "AUTO_CLOSE_DELAY", "POPUP_POSITION",
		"HIDE_TRANSACTION_DETAILS", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"SCREEN_WIDTH", "SCREEN_HEIGHT", "DATABASE_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxPopups != 4 {
		t.Errorf("MaxPopups: got %d, want 4", cfg.MaxPopups)
	}
	if cfg.AutoCloseDelay != 5*time.Minute {
		t.Errorf("AutoCloseDelay: got %v, want 5m", cfg.AutoCloseDelay)
	}
	if cfg.PopupPosition != "top-right" {
		t.Errorf("PopupPosition: got %q", cfg.PopupPosition)
	}
	if cfg.TelegramEnabled() {
		t.Error("telegram should be disabled without settings")
	}
	if !errors.Is(cfg.RequireRelay(), ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", cfg.RequireRelay())
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	content := "PUSHBULLET_API_KEY=o.abcdef1234\nMAX_POPUPS=2\nAUTO_CLOSE_DELAY=300000\nHIDE_TRANSACTION_DETAILS=true\nTELEGRAM_BOT_TOKEN=tok\nTELEGRAM_CHAT_ID=42\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.RequireRelay(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if cfg.MaxPopups != 2 {
		t.Errorf("MaxPopups: got %d, want 2", cfg.MaxPopups)
	}
	if cfg.AutoCloseDelay != 5*time.Minute {
		t.Errorf("AutoCloseDelay: got %v, want 5m", cfg.AutoCloseDelay)
	}
	if !cfg.HideTransactionDetails {
		t.Error("HideTransactionDetails should be true")
	}
	if !cfg.TelegramEnabled() || cfg.TelegramChatID != 42 {
		t.Errorf("telegram settings not loaded: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric popups", "MAX_POPUPS", "four"},
		{"zero popups", "MAX_POPUPS", "0"},
		{"bad duration", "AUTO_CLOSE_DELAY", "soon"},
		{"negative duration", "AUTO_CLOSE_DELAY", "-5s"},
		{"bad bool", "HIDE_TRANSACTION_DETAILS", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", time.Second},
		{"0", 0},
		{"1500", 1500 * time.Millisecond},
		{"2m", 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			got, err := getEnvAsDuration("TEST_DURATION", time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}
