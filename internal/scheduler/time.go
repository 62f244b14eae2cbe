package scheduler

import "time"

func timeLoadLocation(timezone string) (*time.Location, error) {
	return time.LoadLocation(timezone)
}

// currentDateKey returns today's date as YYYY-MM-DD in timezone,
// falling back to UTC if timezone fails to load (should not happen;
// config.Validate already checked it).
func currentDateKey(timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02")
}

// currentMonthKey returns the current month as YYYY-MM in timezone.
func currentMonthKey(timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01")
}
