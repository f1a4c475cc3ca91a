package main

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-sms-notifier/internal/config"
	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
	"github.com/insightdelivered/bank-sms-notifier/internal/surface"
)

func TestMessageArg(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{"joined args", []string{"SD", "TK", "123"}, "ignored", "SD TK 123"},
		{"stdin", nil, "  SD TK 123\n", "SD TK 123"},
		{"empty", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := messageArg(tt.args, strings.NewReader(tt.stdin))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPopupConfig(t *testing.T) {
	cfg := &config.Config{
		MaxPopups:              3,
		AutoCloseDelay:         time.Minute,
		PopupPosition:          "bottom-left",
		HideTransactionDetails: true,
		ScreenWidth:            1366,
		ScreenHeight:           768,
	}

	got, err := popupConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Corner != notify.BottomLeft || got.MaxSlots != 3 || !got.Compact {
		t.Errorf("unexpected config %+v", got)
	}
	if got.Metrics != notify.CompactMetrics {
		t.Errorf("expected compact metrics, got %+v", got.Metrics)
	}
	if got.WorkArea != (notify.Rect{Width: 1366, Height: 768}) {
		t.Errorf("unexpected work area %+v", got.WorkArea)
	}

	cfg.PopupPosition = "middle"
	if _, err := popupConfig(cfg); err == nil {
		t.Error("expected error for unknown position")
	}
}

func TestBuildSurfaceWithoutTelegram(t *testing.T) {
	s := buildSurface(&config.Config{}, zerolog.Nop())
	if _, ok := s.(*surface.Log); !ok {
		t.Errorf("expected log surface, got %T", s)
	}
}
