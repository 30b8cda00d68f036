package clock

import (
	"fmt"
	"time"
)

const layout = "2006-01-02T15:04:05Z"

func Now() string {
	return Format(time.Now())
}

func Format(t time.Time) string {
	return t.UTC().Format(layout)
}

// Remaining renders the time left until next in a short human form, like "3h 20m";
// an empty string means next has already passed.
func Remaining(now, next time.Time) string {
	left := next.Sub(now)
	if left <= 0 {
		return ""
	}
	hours := int(left.Hours())
	minutes := int(left.Minutes()) % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "less than a minute"
	}
}
