package market

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadPeriod is returned for a period string that cannot be parsed.
var ErrBadPeriod = errors.New("invalid period")

var periodUnits = []struct {
	suffix string
	unit   time.Duration
}{
	// Longest suffixes first so "mo" is not read as "m".
	{"wk", 7 * 24 * time.Hour},
	{"mo", 30 * 24 * time.Hour},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
	{"y", 365 * 24 * time.Hour},
}

// ParsePeriod parses a period such as "1h", "5d" or "1mo".
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, u := range periodUnits {
		num, ok := strings.CutSuffix(s, u.suffix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadPeriod, s)
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadPeriod, s)
}
