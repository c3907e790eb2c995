// Package timeutil provides time value types shared by the escalation
// engine: JSON-friendly durations, time-of-day windows that may wrap
// midnight, and human-readable duration formatting for plan output.
package timeutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration with a human-readable JSON form ("5m0s").
type Duration time.Duration

// D converts a time.Duration into a Duration.
func D(d time.Duration) Duration { return Duration(d) }

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration in time.Duration string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts both the string form ("5m") and a bare number of
// nanoseconds, so documents written by hand or by older tooling both load.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or number: %s", data)
	}
	*d = Duration(n)
	return nil
}

// MarshalText encodes the duration in time.Duration string form, for
// formats that go through encoding.TextMarshaler (TOML).
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText parses the time.Duration string form.
func (d *Duration) UnmarshalText(data []byte) error {
	parsed, err := time.ParseDuration(string(data))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", data, err)
	}
	*d = Duration(parsed)
	return nil
}

// TimeOfDay is a wall-clock time within a day, serialized as "HH:MM:SS".
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM:SS" (or "HH:MM") into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return t, fmt.Errorf("invalid time of day %q", s)
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return t, fmt.Errorf("invalid time of day %q", s)
	}
	if len(parts) == 3 {
		if _, err := fmt.Sscanf(parts[2], "%d", &t.Second); err != nil {
			return t, fmt.Errorf("invalid time of day %q", s)
		}
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return t, fmt.Errorf("time of day out of range %q", s)
	}
	return t, nil
}

// String renders the canonical "HH:MM:SS" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// MarshalJSON encodes as "HH:MM:SS".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes from "HH:MM:SS".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// secondsIntoDay returns the offset of t from midnight.
func (t TimeOfDay) secondsIntoDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// At anchors the time of day onto the calendar date of ref, in ref's location.
func (t TimeOfDay) At(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, t.Second, 0, ref.Location())
}

// InsideWindow reports whether now's time of day lies in [from, to).
// The window may wrap past midnight (from 22:00 to 06:00 covers the night).
func InsideWindow(now time.Time, from, to TimeOfDay) bool {
	n := now.Hour()*3600 + now.Minute()*60 + now.Second()
	f := from.secondsIntoDay()
	u := to.secondsIntoDay()
	if f <= u {
		return n >= f && n < u
	}
	return n >= f || n < u
}

// NextOccurrence returns the next instant at which the time of day occurs:
// today if it is still ahead of now, otherwise tomorrow.
func NextOccurrence(now time.Time, t TimeOfDay) time.Time {
	at := t.At(now)
	if at.After(now) {
		return at
	}
	return at.AddDate(0, 0, 1)
}

// FormatApprox renders a duration for plan output: "now" for zero,
// otherwise the largest non-zero units ("5 min", "1 hour 30 min").
func FormatApprox(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Second)
	var parts []string
	if h := int(d.Hours()); h > 0 {
		unit := "hours"
		if h == 1 {
			unit = "hour"
		}
		parts = append(parts, fmt.Sprintf("%d %s", h, unit))
		d -= time.Duration(h) * time.Hour
	}
	if m := int(d.Minutes()); m > 0 {
		parts = append(parts, fmt.Sprintf("%d min", m))
		d -= time.Duration(m) * time.Minute
	}
	if len(parts) == 0 {
		if s := int(d.Seconds()); s > 0 {
			parts = append(parts, fmt.Sprintf("%d sec", s))
		} else {
			return "now"
		}
	}
	return strings.Join(parts, " ")
}
