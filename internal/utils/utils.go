package utils

import (
	"strings"
	"time"

	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

// TimeLayout is the layout of timestamps shown to the user
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime shows t in local time, "never" for the zero time and the epoch
func FormatTime(t time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return "never"
	}
	return t.Local().Format(TimeLayout)
}

// FormatDuration rounds d for display
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// Wrap word wraps s at width
func Wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}

// Truncate shortens s to width cells, marking the cut with an ellipsis
func Truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	// Table cells are single line
	s = strings.Join(strings.Fields(s), " ")
	return truncate.StringWithTail(s, uint(width), "…")
}

// MaskSecret keeps the first and last characters of a secret
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
