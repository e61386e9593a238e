package domain

import (
	"fmt"
	"time"
)

// CivilDate is a calendar date with no time-of-day or zone component. It is
// comparable, so it can participate in map keys such as ControlKey, and it
// (de)serializes as an ISO-8601 date string.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the civil date of t in t's location.
func DateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// ParseCivilDate parses an ISO-8601 date (2006-01-02).
func ParseCivilDate(s string) (CivilDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return CivilDate{}, fmt.Errorf("parse civil date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero date.
func (d CivilDate) IsZero() bool {
	return d == CivilDate{}
}

// String formats the date as 2006-01-02.
func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns the midnight instant of d in loc.
func (d CivilDate) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// MarshalText implements encoding.TextMarshaler.
func (d CivilDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *CivilDate) UnmarshalText(data []byte) error {
	parsed, err := ParseCivilDate(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
