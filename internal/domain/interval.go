package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Interval units accepted by ParseInterval. Months and years are calendar-free
// approximations (30 and 365 days).
var intervalUnits = map[string]time.Duration{
	"y":  365 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"d":  24 * time.Hour,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
}

// ParseInterval converts a compound duration such as "1d12h30m" into a delay.
// Units may appear in any order and repeat; the result must be positive.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrNoRefreshInterval
	}

	var total time.Duration
	for i := 0; i < len(s); {
		if s[i] == ' ' {
			i++
			continue
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("interval %q: expected a number at offset %d", s, start)
		}
		n, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("interval %q: %w", s, err)
		}

		unitStart := i
		for i < len(s) && s[i] >= 'a' && s[i] <= 'z' {
			i++
		}
		unit, ok := intervalUnits[s[unitStart:i]]
		if !ok {
			return 0, fmt.Errorf("interval %q: unknown unit %q", s, s[unitStart:i])
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("interval %q: %d%s exceeds the maximum duration", s, n, s[unitStart:i])
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("interval %q: exceeds the maximum duration", s)
		}
		total += part
	}

	if total <= 0 {
		return 0, fmt.Errorf("interval %q: %w", s, ErrNoRefreshInterval)
	}
	return total, nil
}
