package domain

import (
	"testing"
	"time"
)

func TestResolveShiftBoundaries(t *testing.T) {
	loc := time.FixedZone("farm", -5*3600)
	day := func(hour, minute int) time.Time {
		return time.Date(2026, time.March, 14, hour, minute, 0, 0, loc)
	}
	want := CivilDate{Year: 2026, Month: time.March, Day: 14}

	cases := []struct {
		name string
		at   time.Time
		want Shift
	}{
		{"just before morning", day(6, 59), ShiftNight},
		{"morning opens", day(7, 0), ShiftMorning},
		{"just before afternoon", day(11, 59), ShiftMorning},
		{"afternoon opens", day(12, 0), ShiftAfternoon},
		{"just before evening", day(17, 59), ShiftAfternoon},
		{"evening opens", day(18, 0), ShiftEvening},
		{"end of day", day(23, 59), ShiftEvening},
		{"midnight stays on its own date", day(0, 0), ShiftNight},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shift, date := ResolveShift(tc.at, loc)
			if shift != tc.want {
				t.Fatalf("shift = %s, want %s", shift, tc.want)
			}
			if date != want {
				t.Fatalf("date = %s, want %s", date, want)
			}
		})
	}
}

func TestResolveShiftUsesLocalHourNotUTC(t *testing.T) {
	loc := time.FixedZone("farm", -5*3600)
	// 13:30 UTC is 08:30 local: morning, not afternoon.
	at := time.Date(2026, time.March, 14, 13, 30, 0, 0, time.UTC)
	shift, date := ResolveShift(at, loc)
	if shift != ShiftMorning {
		t.Fatalf("shift = %s, want %s", shift, ShiftMorning)
	}
	if want := (CivilDate{Year: 2026, Month: time.March, Day: 14}); date != want {
		t.Fatalf("date = %s, want %s", date, want)
	}
	// 03:00 UTC on the 15th is 22:00 local on the 14th.
	at = time.Date(2026, time.March, 15, 3, 0, 0, 0, time.UTC)
	shift, date = ResolveShift(at, loc)
	if shift != ShiftEvening {
		t.Fatalf("shift = %s, want %s", shift, ShiftEvening)
	}
	if want := (CivilDate{Year: 2026, Month: time.March, Day: 14}); date != want {
		t.Fatalf("date = %s, want %s", date, want)
	}
}

func TestShiftStartOpensItsOwnWindow(t *testing.T) {
	loc := time.FixedZone("farm", -5*3600)
	date := CivilDate{Year: 2026, Month: time.March, Day: 14}

	for shift, hour := range map[Shift]int{
		ShiftNight:     0,
		ShiftMorning:   7,
		ShiftAfternoon: 12,
		ShiftEvening:   18,
	} {
		start := shift.Start(date, loc)
		if start.Hour() != hour {
			t.Errorf("%s starts at %d, want %d", shift, start.Hour(), hour)
		}
		resolved, resolvedDate := ResolveShift(start, loc)
		if resolved != shift || resolvedDate != date {
			t.Errorf("%s start resolves to %s on %s", shift, resolved, resolvedDate)
		}
	}
}

func TestParseShift(t *testing.T) {
	for _, name := range []string{"morning", "afternoon", "evening", "night"} {
		if _, err := ParseShift(name); err != nil {
			t.Errorf("ParseShift(%q): %v", name, err)
		}
	}
	if _, err := ParseShift("dawn"); err == nil {
		t.Error("expected error for unknown shift")
	}
}

func TestCivilDateRoundTrip(t *testing.T) {
	d, err := ParseCivilDate("2026-03-14")
	if err != nil {
		t.Fatalf("ParseCivilDate: %v", err)
	}
	if got := d.String(); got != "2026-03-14" {
		t.Fatalf("String = %q", got)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var back CivilDate
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != d {
		t.Fatalf("round trip mismatch: %s != %s", back, d)
	}
	if _, err := ParseCivilDate("14/03/2026"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}
