package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeUnits = []struct {
	suffix string
	unit   time.Duration
}{
	// "ms" must be checked before "m" and "s"
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseStringTime converts strings like "800ms", "5s", "3m", "48h" or "2d" into a duration.
func ParseStringTime(timeString string) (time.Duration, error) {
	value := strings.ToLower(strings.TrimSpace(timeString))
	if value == "" {
		return 0, fmt.Errorf("empty time string")
	}
	for _, u := range timeUnits {
		cutString, found := strings.CutSuffix(value, u.suffix)
		if !found {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSpace(cutString))
		if err != nil {
			return 0, fmt.Errorf("invalid time string %q: %w", timeString, err)
		}
		if number < 0 {
			return 0, fmt.Errorf("negative time string %q", timeString)
		}
		return time.Duration(number) * u.unit, nil
	}
	return 0, fmt.Errorf("invalid time format: %s", timeString)
}

// FormatDuration renders d the way ParseStringTime reads it back, using the largest exact unit.
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
}
