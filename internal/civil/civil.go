// Package civil holds calendar dates and times of day without a time zone.
//
// Slot dates are always derived from UTC components so that a date never
// shifts by a day when the server or the caller runs in another zone.
package civil

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"

	secondsPerDay = 24 * 60 * 60
)

// Date is a calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current UTC date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return d.Time().Format(DateLayout)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time measured in seconds since midnight.
type TimeOfDay int32

// NewTimeOfDay builds a TimeOfDay, rejecting out-of-range components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("invalid time of day %02d:%02d:%02d", hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
		}
	}
	return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
}

// TimeOfDayFromDuration converts an offset from midnight, truncating sub-second precision.
func TimeOfDayFromDuration(d time.Duration) (TimeOfDay, error) {
	sec := int64(d / time.Second)
	if sec < 0 || sec >= secondsPerDay {
		return 0, fmt.Errorf("time of day out of range: %s", d)
	}
	return TimeOfDay(sec), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// On returns the UTC instant of t on date d.
func (t TimeOfDay) On(d Date) time.Time {
	return d.Time().Add(t.Duration())
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}
