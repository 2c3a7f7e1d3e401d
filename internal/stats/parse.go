package stats

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// TimestampLayout is the accepted form of span bounds, read as UTC.
const TimestampLayout = "2006-01-02 15:04:05"

var durationLiteral = regexp.MustCompile(`^(\d+)(ms|s|m|h|d|w)$`)

var unitMillis = map[string]int64{
	"ms": 1,
	"s":  second,
	"m":  minute,
	"h":  hour,
	"d":  day,
	"w":  week,
}

// ParseDuration parses an integer followed by ms, s, m, h, d or w and returns
// milliseconds.
func ParseDuration(s string) (int64, error) {
	m := durationLiteral.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: duration %q (want e.g. 90m, 2h, 1w)", ErrArgument, s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	unit := unitMillis[m[2]]
	if err != nil || n > math.MaxInt64/unit {
		return 0, fmt.Errorf("%w: duration %q is out of range", ErrArgument, s)
	}
	return n * unit, nil
}

// ParseTimestamp parses "YYYY-MM-DD HH:MM:SS" as UTC milliseconds.
func ParseTimestamp(s string) (int64, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q (want %s)", ErrArgument, s, TimestampLayout)
	}
	return t.UnixMilli(), nil
}

// ParseGroupBy maps "c" to ByClass and "n" to ByTitle.
func ParseGroupBy(s string) (GroupBy, error) {
	switch s {
	case "c":
		return ByClass, nil
	case "n":
		return ByTitle, nil
	}
	return 0, fmt.Errorf("%w: group %q (want n or c)", ErrArgument, s)
}

// ParsePattern compiles a case-sensitive key filter. An empty pattern
// matches everything.
func ParsePattern(s string) (*regexp.Regexp, error) {
	if s == "" {
		return nil, nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern: %w", ErrArgument, err)
	}
	return re, nil
}
