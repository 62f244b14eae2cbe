package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// SessionWindow describes one of the 8 fixed daily binary-matching
// windows (spec.md §6). Start/End are "HH:MM" in the engine's
// configured timezone; End of the last window is the literal "24:00"
// midnight boundary.
type SessionWindow struct {
	Index int
	Start string
	End   string
}

// SessionWindows is the authoritative table of the 8 daily sessions.
var SessionWindows = []SessionWindow{
	{Index: 1, Start: "06:00", End: "08:15"},
	{Index: 2, Start: "08:15", End: "10:30"},
	{Index: 3, Start: "10:30", End: "12:45"},
	{Index: 4, Start: "12:45", End: "15:00"},
	{Index: 5, Start: "15:00", End: "17:15"},
	{Index: 6, Start: "17:15", End: "19:30"},
	{Index: 7, Start: "19:30", End: "21:45"},
	{Index: 8, Start: "21:45", End: "24:00"},
}

// MinSessionIndex and MaxSessionIndex bound the valid sessionIndex range.
const (
	MinSessionIndex = 1
	MaxSessionIndex = 8
)

// SessionWindowFor returns the window for a 1..8 session index.
func SessionWindowFor(index int) (SessionWindow, error) {
	if index < MinSessionIndex || index > MaxSessionIndex {
		return SessionWindow{}, fmt.Errorf("session index out of range: %d", index)
	}
	return SessionWindows[index-1], nil
}

// CronSpec renders the window's start time as a 5-field cron
// expression ("M H * * *") the scheduler hands to robfig/cron.
func (w SessionWindow) CronSpec() string {
	hour, minute := "0", "0"
	if parts := strings.SplitN(w.Start, ":", 2); len(parts) == 2 {
		hour, minute = parts[0], parts[1]
	}
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	return fmt.Sprintf("%d %d * * *", m, h)
}
