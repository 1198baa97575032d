package timer

import "fmt"

const (
	// Glyph stands in for the label when the timer has none.
	Glyph    = "⏱"
	ellipsis = "…"

	DefaultLabelMaxChars = 12
	DefaultIdleTitle     = "Mirumi"
)

// FormatClock renders seconds as MM:SS. Minutes are not wrapped at 60.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatTitle renders "<label> MM:SS", cutting the label to maxChars
// characters plus an ellipsis. An empty label becomes the glyph.
func FormatTitle(label string, seconds, maxChars int) string {
	if label == "" {
		return Glyph + " " + FormatClock(seconds)
	}
	return truncate(label, maxChars) + " " + FormatClock(seconds)
}

func truncate(s string, n int) string {
	if n <= 0 {
		n = DefaultLabelMaxChars
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}
