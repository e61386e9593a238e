package domain

import (
	"fmt"
	"time"
)

// Shift is one of four fixed daily time windows bounding how often a control
// may be recorded per animal per day.
type Shift string

// Canonical shift names. Boundaries are half-open on the right against the
// local civil hour: morning [07,12), afternoon [12,18), evening [18,24),
// night [00,07).
const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftEvening   Shift = "evening"
	ShiftNight     Shift = "night"
)

// ParseShift validates a shift name.
func ParseShift(s string) (Shift, error) {
	switch Shift(s) {
	case ShiftMorning, ShiftAfternoon, ShiftEvening, ShiftNight:
		return Shift(s), nil
	}
	return "", ValidationError{Field: "shift", Message: fmt.Sprintf("unknown shift %q", s)}
}

// Start returns the opening instant of the shift window on date in loc.
func (s Shift) Start(date CivilDate, loc *time.Location) time.Time {
	hour := 18
	switch s {
	case ShiftNight:
		hour = 0
	case ShiftMorning:
		hour = 7
	case ShiftAfternoon:
		hour = 12
	}
	return time.Date(date.Year, date.Month, date.Day, hour, 0, 0, 0, loc)
}

// ResolveShift maps an instant to the shift window and calendar date of its
// local civil time in loc. The date returned is the local date of the
// timestamp itself, never the date of any storage clock, so a reading logged
// at local 00:10 lands in the night shift of that same calendar day.
func ResolveShift(at time.Time, loc *time.Location) (Shift, CivilDate) {
	local := at.In(loc)
	date := DateOf(local)
	switch h := local.Hour(); {
	case h < 7:
		return ShiftNight, date
	case h < 12:
		return ShiftMorning, date
	case h < 18:
		return ShiftAfternoon, date
	default:
		return ShiftEvening, date
	}
}
