// internal/app/system/checkwindow/checkwindow.go

// Package checkwindow implements the daily attendance time window.
// Check-ins are allowed only between a configured start and end wall-clock
// time in the campaign timezone; undo is window-restricted for today only
// (past dates may be undone at any time).
package checkwindow

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day key stored on attendance records.
const DateLayout = "2006-01-02"

// Window is a daily wall-clock window in a fixed timezone.
type Window struct {
	startMin int // minutes after midnight
	endMin   int
	loc      *time.Location
}

// New parses "HH:MM" start/end strings and an IANA timezone name.
// The window is inclusive of start and exclusive of end.
func New(start, end, tz string) (Window, error) {
	s, err := parseHHMM(start)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window start %q: %w", start, err)
	}
	e, err := parseHHMM(end)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window end %q: %w", end, err)
	}
	if e <= s {
		return Window{}, fmt.Errorf("window end %q must be after start %q", end, start)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return Window{startMin: s, endMin: e, loc: loc}, nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	lt := t.In(w.loc)
	min := lt.Hour()*60 + lt.Minute()
	return min >= w.startMin && min < w.endMin
}

// DateKey returns the calendar-day key for t in the window's timezone.
func (w Window) DateKey(t time.Time) string {
	return t.In(w.loc).Format(DateLayout)
}

// IsToday reports whether the given date key names today in the window's
// timezone.
func (w Window) IsToday(date string, now time.Time) bool {
	return date == w.DateKey(now)
}

// Location exposes the window's timezone for display formatting.
func (w Window) Location() *time.Location { return w.loc }

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return h*60 + m, nil
}
