package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the accepted target date format.
const DateLayout = "2006-01-02"

// windowHalfWidth is the number of days searched on each side of the
// historical date.
const windowHalfWidth = 7 * 24 * time.Hour

// ParseTargetDate parses a YYYY-MM-DD date as midnight UTC.
func ParseTargetDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, s)
	}
	return t, nil
}

// HistoricalDate shifts target back to year, keeping month and day. February
// 29 maps to February 28 in non-leap years.
func HistoricalDate(target time.Time, year int) time.Time {
	month, day := target.Month(), target.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SearchWindows returns one ±7-day window per year offset 1..yearsBack,
// most recent year first.
func SearchWindows(target time.Time, yearsBack int) []SearchWindow {
	windows := make([]SearchWindow, 0, max(yearsBack, 0))
	for offset := 1; offset <= yearsBack; offset++ {
		year := target.Year() - offset
		hist := HistoricalDate(target, year)
		windows = append(windows, SearchWindow{
			Year:  year,
			Start: hist.Add(-windowHalfWidth),
			End:   hist.Add(windowHalfWidth),
		})
	}
	return windows
}

// Center returns the historical date the window is built around.
func (w SearchWindow) Center() time.Time {
	return w.Start.Add(windowHalfWidth)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
