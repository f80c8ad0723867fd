package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPartRe = regexp.MustCompile(`(\d+(?:\.\d+)?) ?(hours?|hrs?|h|minutes?|mins?|m)\b`)

// ParseDurationText interprets a human duration phrase: "30 minutes",
// "1.5 hours", "1 hour 15 minutes", "90m", "an hour". Multiple parts are
// summed. Fails on anything non-positive, unparseable, or over a day.
func ParseDurationText(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "for ")
	if s == "" {
		return 0, fmt.Errorf("timeparse: empty duration")
	}

	switch s {
	case "an hour", "a hour", "one hour":
		return time.Hour, nil
	case "half an hour", "half hour", "a half hour":
		return 30 * time.Minute, nil
	case "an hour and a half", "hour and a half", "one and a half hours":
		return 90 * time.Minute, nil
	}

	// Bare Go forms ("90m", "1h30m") parse directly.
	if d, err := time.ParseDuration(s); err == nil {
		return validateDuration(d)
	}

	// A bare number means minutes.
	if n, err := strconv.Atoi(s); err == nil {
		return validateDuration(time.Duration(n) * time.Minute)
	}

	var total time.Duration
	for _, m := range durationPartRe.FindAllStringSubmatch(s, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := time.Minute
		if strings.HasPrefix(m[2], "h") {
			unit = time.Hour
		}
		total += time.Duration(value * float64(unit))
	}
	if total == 0 {
		return 0, fmt.Errorf("timeparse: unrecognized duration %q", s)
	}
	return validateDuration(total)
}

func validateDuration(d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, fmt.Errorf("timeparse: duration must be positive, got %s", d)
	}
	if d > 24*time.Hour {
		return 0, fmt.Errorf("timeparse: duration %s is longer than a day", d)
	}
	return d.Round(time.Minute), nil
}
