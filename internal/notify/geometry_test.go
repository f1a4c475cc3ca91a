package notify

import "testing"

func TestGeometry(t *testing.T) {
	screen := Rect{Width: 1920, Height: 1080}
	tests := []struct {
		name     string
		ordinal  int
		corner   Corner
		metrics  Metrics
		area     Rect
		expected Rect
	}{
		{"top-right front", 0, TopRight, RegularMetrics, screen, Rect{X: 1360, Y: 10, Width: 550, Height: 210}},
		{"top-right third", 2, TopRight, RegularMetrics, screen, Rect{X: 1360, Y: 450, Width: 550, Height: 210}},
		{"top-left second", 1, TopLeft, RegularMetrics, screen, Rect{X: 10, Y: 230, Width: 550, Height: 210}},
		{"bottom-right front", 0, BottomRight, RegularMetrics, screen, Rect{X: 1360, Y: 860, Width: 550, Height: 210}},
		{"bottom-left second", 1, BottomLeft, RegularMetrics, screen, Rect{X: 10, Y: 640, Width: 550, Height: 210}},
		{"compact top-right second", 1, TopRight, CompactMetrics, screen, Rect{X: 1360, Y: 170, Width: 550, Height: 130}},
		{"offset work area", 0, BottomRight, RegularMetrics, Rect{X: 100, Y: 40, Width: 1280, Height: 720}, Rect{X: 820, Y: 540, Width: 550, Height: 210}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Geometry(tt.ordinal, tt.corner, tt.metrics, tt.area)
			if got != tt.expected {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestParseCorner(t *testing.T) {
	tests := []struct {
		input    string
		expected Corner
		wantErr  bool
	}{
		{"", TopRight, false},
		{"top-left", TopLeft, false},
		{"bottom-right", BottomRight, false},
		{"middle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCorner(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
