// Package clock pins the economy's calendar day to UTC+7.
package clock

import "time"

// Bangkok is the fixed offset every daily counter is evaluated in.
var Bangkok = time.FixedZone("UTC+7", 7*60*60)

// Day returns midnight of t's UTC+7 calendar day.
func Day(t time.Time) time.Time {
	local := t.In(Bangkok)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Bangkok)
}

// SameDay reports whether a and b fall on the same UTC+7 calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// NextMidnight returns the next UTC+7 midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1)
}

// DateOnly converts the UTC+7 calendar day of t into a UTC-midnight value
// suitable for a DATE column.
func DateOnly(t time.Time) time.Time {
	d := Day(t)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }
