// Package expiry classifies certificate expiry dates against the reporting
// window using calendar-relative arithmetic.
package expiry

import "time"

// ReportingWindowMonths is the number of whole calendar months ahead of
// "today" that still counts as expiring soon.
const ReportingWindowMonths = 2

// Delta computes the calendar difference between today and target as whole
// years, whole months and a day remainder, such that adding the three
// components to today (months clamped to month ends) lands on target.
// All components carry the same sign; they are negative when target is
// before today.
func Delta(today, target time.Time) (years, months, days int) {
	t := dateOnly(today)
	g := dateOnly(target)

	m := (g.Year()-t.Year())*12 + int(g.Month()) - int(t.Month())
	if !g.Before(t) {
		for addMonths(t, m).After(g) {
			m--
		}
	} else {
		for addMonths(t, m).Before(g) {
			m++
		}
	}
	anchor := addMonths(t, m)
	days = int(g.Sub(anchor).Hours() / 24)

	years = m / 12
	months = m % 12
	return years, months, days
}

// ExpiringSoon reports whether target falls inside the reporting window:
// strictly between today (inclusive) and the start of the third calendar
// month from today. The comparison is calendar-based, not a fixed day count.
func ExpiringSoon(today, target time.Time) bool {
	years, months, days := Delta(today, target)
	return years == 0 && months >= 0 && months <= ReportingWindowMonths && days >= 0
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// addMonths shifts t by m whole months, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28, not Mar 3).
func addMonths(t time.Time, m int) time.Time {
	year := t.Year()
	month := int(t.Month()) - 1 + m
	year += month / 12
	month = month % 12
	if month < 0 {
		month += 12
		year--
	}
	day := t.Day()
	if last := daysIn(year, time.Month(month+1)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
