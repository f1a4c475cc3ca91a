package notify

import "fmt"

// Corner is the screen corner popups are anchored to.
type Corner string

const (
	TopRight    Corner = "top-right"
	TopLeft     Corner = "top-left"
	BottomRight Corner = "bottom-right"
	BottomLeft  Corner = "bottom-left"
)

// ParseCorner validates a corner name. An empty name means TopRight.
func ParseCorner(s string) (Corner, error) {
	switch c := Corner(s); c {
	case "":
		return TopRight, nil
	case TopRight, TopLeft, BottomRight, BottomLeft:
		return c, nil
	default:
		return "", fmt.Errorf("unknown popup position %q", s)
	}
}

func (c Corner) right() bool  { return c == TopRight || c == BottomRight }
func (c Corner) bottom() bool { return c == BottomRight || c == BottomLeft }

// Rect is a screen rectangle in pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metrics sizes and spaces popups.
type Metrics struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Margin  int `json:"margin"`
	Spacing int `json:"spacing"`
}

var (
	RegularMetrics = Metrics{Width: 550, Height: 210, Margin: 10, Spacing: 220}
	// CompactMetrics is used when transaction details are hidden.
	CompactMetrics = Metrics{Width: 550, Height: 130, Margin: 10, Spacing: 160}
)

// Geometry places the popup at ordinal inside workArea. Top corners stack
// downward and bottom corners stack upward.
func Geometry(ordinal int, corner Corner, m Metrics, workArea Rect) Rect {
	r := Rect{Width: m.Width, Height: m.Height}

	if corner.right() {
		r.X = workArea.X + workArea.Width - m.Width - m.Margin
	} else {
		r.X = workArea.X + m.Margin
	}

	offset := ordinal * m.Spacing
	if corner.bottom() {
		r.Y = workArea.Y + workArea.Height - m.Height - m.Margin - offset
	} else {
		r.Y = workArea.Y + m.Margin + offset
	}
	return r
}
