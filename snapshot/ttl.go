package snapshot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is how long a snapshot that no environment references is kept.
const DefaultTTL = "in 1 week"

var relativeTimePattern = regexp.MustCompile(
	`^(in\s+)?(\d+)\s*(second|sec|minute|min|hour|day|week|month|year)s?(\s+ago)?$`,
)

// ResolveTTL returns the instant the ttl expression denotes relative to from.
//
// Supported are relative expressions like "in 7 days", "2 weeks" or "1 day ago" and Go durations like "36h".
// The result must lie after from, otherwise ErrInvalidTTL is returned.
func ResolveTTL(ttl string, from time.Time) (time.Time, error) {
	expr := strings.ToLower(strings.TrimSpace(ttl))

	resolved, ok := resolveRelativeTime(expr, from)
	if !ok {
		duration, err := time.ParseDuration(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q cannot be parsed", ErrInvalidTTL, ttl)
		}

		resolved = from.Add(duration)
	}

	if !resolved.After(from) {
		return time.Time{}, fmt.Errorf(
			"%w: %q, use the 'in' keyword to denote a positive time interval, e.g. 'in 7 days'",
			ErrInvalidTTL,
			ttl,
		)
	}

	return resolved, nil
}

// ValidateTTL checks that the ttl expression resolves to a positive duration.
func ValidateTTL(ttl string) error {
	_, err := ResolveTTL(ttl, time.Now())
	return err
}

func resolveRelativeTime(expr string, from time.Time) (time.Time, bool) {
	match := relativeTimePattern.FindStringSubmatch(expr)
	if match == nil {
		return time.Time{}, false
	}

	amount, err := strconv.Atoi(match[2])
	if err != nil {
		return time.Time{}, false
	}

	if match[4] != "" {
		if match[1] != "" {
			return time.Time{}, false
		}

		amount = -amount
	}

	switch match[3] {
	case "second", "sec":
		return from.Add(time.Duration(amount) * time.Second), true
	case "minute", "min":
		return from.Add(time.Duration(amount) * time.Minute), true
	case "hour":
		return from.Add(time.Duration(amount) * time.Hour), true
	case "day":
		return from.AddDate(0, 0, amount), true
	case "week":
		return from.AddDate(0, 0, 7*amount), true
	case "month":
		return from.AddDate(0, amount, 0), true
	default:
		return from.AddDate(amount, 0, 0), true
	}
}
