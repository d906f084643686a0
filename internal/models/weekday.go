package models

import (
	"strings"
	"time"
)

// Weekday is one of the seven fixed day tokens a schedule can meet on.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdays = [...]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// ParseWeekday accepts a day token in any letter case.
func ParseWeekday(raw string) (Weekday, bool) {
	day := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	for _, d := range weekdays {
		if d == day {
			return d, true
		}
	}
	return "", false
}

// WeekdayOf returns the token for t's day of week.
func WeekdayOf(t time.Time) Weekday {
	return weekdays[t.Weekday()]
}

// TimeWeekday converts the token back to time.Weekday.
func (d Weekday) TimeWeekday() time.Weekday {
	for i, w := range weekdays {
		if w == d {
			return time.Weekday(i)
		}
	}
	return time.Sunday
}

// ICalDay returns the two-letter RFC 5545 BYDAY code.
func (d Weekday) ICalDay() string {
	if len(d) < 2 {
		return ""
	}
	return string(d[:2])
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string as a UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
