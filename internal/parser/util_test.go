package parser

import (
	"regexp"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1,400,000", 1400000},
		{"63,908,063", 63908063},
		{"0", 0},
		{"", 0},
		{" 12 ", 12},
		{"1,2,3", 123},
		{"abc", 0},
		{"99999999999999999999", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseNumber(tt.input); got != tt.expected {
				t.Errorf("got %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestExtractMatch(t *testing.T) {
	re := regexp.MustCompile(`TK:(\d+)`)
	if got := extractMatch("TK:123|x", re, 1); got != "123" {
		t.Errorf("got %q, want %q", got, "123")
	}
	if got := extractMatch("nothing", re, 1); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := extractMatch("TK:123", re, 5); got != "" {
		t.Errorf("got %q, want empty for out of range group", got)
	}
}
