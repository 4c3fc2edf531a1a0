package ticker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ServerTimeLayout is the reference layout of the get_time reply.
const ServerTimeLayout = "2006-01-02 15:04:05 MST"

// ErrBadServerTime is returned for a server_time string that does not
// match "YYYY-MM-DD HH:MM:SS TZ".
var ErrBadServerTime = errors.New("malformed server time")

// DateTime is a calendar time as handed to the RTC.
type DateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int

	// Zone is the timezone token of the server string, at most 3 characters.
	Zone string
}

// ParseServerTime parses a server_time string such as
// "2025-06-06 12:30:15 UTC".
func ParseServerTime(s string) (DateTime, error) {
	var dt DateTime
	n, err := fmt.Sscanf(s, "%d-%d-%d %d:%d:%d %s",
		&dt.Year, &dt.Month, &dt.Day, &dt.Hour, &dt.Minute, &dt.Second, &dt.Zone)
	if err != nil || n != 7 {
		return DateTime{}, fmt.Errorf("%w: %q", ErrBadServerTime, s)
	}
	if len(dt.Zone) > 3 {
		dt.Zone = dt.Zone[:3]
	}
	if err := dt.Validate(); err != nil {
		return DateTime{}, fmt.Errorf("%w: %q: %v", ErrBadServerTime, s, err)
	}
	return dt, nil
}

// Validate checks every field is in its calendar range.
func (d DateTime) Validate() error {
	switch {
	case d.Year < 0 || d.Year > 4095:
		return fmt.Errorf("year %d out of range", d.Year)
	case d.Month < 1 || d.Month > 12:
		return fmt.Errorf("month %d out of range", d.Month)
	case d.Day < 1 || d.Day > daysIn(d.Year, d.Month):
		return fmt.Errorf("day %d out of range", d.Day)
	case d.Hour < 0 || d.Hour > 23:
		return fmt.Errorf("hour %d out of range", d.Hour)
	case d.Minute < 0 || d.Minute > 59:
		return fmt.Errorf("minute %d out of range", d.Minute)
	case d.Second < 0 || d.Second > 59:
		return fmt.Errorf("second %d out of range", d.Second)
	}
	return nil
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Time returns d as a time.Time. The zone token is informational only and
// the result is always in UTC.
func (d DateTime) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

// Weekday returns the day of the week of d.
func (d DateTime) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d DateTime) String() string {
	s := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
	if d.Zone != "" {
		s += " " + d.Zone
	}
	return s
}

// RTC is the real-time clock collaborator set by get_time.
type RTC interface {
	SetDateTime(DateTime) error
}

// OffsetClock is an RTC backed by the process clock. Setting it records the
// offset between the given time and the local clock; Now applies it.
type OffsetClock struct {
	mu     sync.RWMutex
	offset time.Duration
	set    bool
	now    func() time.Time
}

// NewOffsetClock creates an unset clock.
func NewOffsetClock() *OffsetClock {
	return &OffsetClock{now: time.Now}
}

// SetDateTime sets the clock to d.
func (c *OffsetClock) SetDateTime(d DateTime) error {
	if err := d.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = d.Time().Sub(c.now())
	c.set = true
	return nil
}

// Now returns the current time as last set, or the local time if the clock
// was never set.
func (c *OffsetClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset).UTC()
}

// IsSet reports whether SetDateTime has succeeded at least once.
func (c *OffsetClock) IsSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

var _ RTC = (*OffsetClock)(nil)
