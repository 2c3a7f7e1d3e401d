package stats

import "fmt"

const (
	second = int64(1000)
	minute = 60 * second
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
)

// Format renders a millisecond count as compact text, e.g. 1h1m1s.
func Format(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	w, d := ms/week, ms%week/day
	h, m, s := ms%day/hour, ms%hour/minute, ms%minute/second

	switch {
	case ms < second:
		return fmt.Sprintf("%dms", ms)
	case ms < minute:
		return fmt.Sprintf("%ds", s)
	case ms < hour:
		return fmt.Sprintf("%dm%ds", m, s)
	case ms < day:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case ms < week:
		return fmt.Sprintf("%dd, %dh%dm%ds", d, h, m, s)
	default:
		return fmt.Sprintf("%dw, %dd, %dh%dm%ds", w, d, h, m, s)
	}
}
