package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ttlPattern = regexp.MustCompile(`(?i)^(\d*\.?\d+)\s*(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`)

// ParseTTL reads a token lifetime. Besides Go durations ("1h30m") it takes a
// single number with a unit ("7d", "2 weeks", "1.5h"); a bare number is seconds.
func ParseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}

	m := ttlPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return time.Duration(n * float64(ttlUnit(m[2]))), nil
}

func ttlUnit(unit string) time.Duration {
	unit = strings.ToLower(unit)
	switch {
	case unit == "":
		return time.Second
	case strings.HasPrefix(unit, "ms"), strings.HasPrefix(unit, "milli"):
		return time.Millisecond
	case unit == "m", strings.HasPrefix(unit, "mi"):
		return time.Minute
	}
	switch unit[0] {
	case 's':
		return time.Second
	case 'h':
		return time.Hour
	case 'd':
		return 24 * time.Hour
	case 'w':
		return 7 * 24 * time.Hour
	}
	// years, as 365.25 days
	return time.Duration(365.25 * float64(24*time.Hour))
}
