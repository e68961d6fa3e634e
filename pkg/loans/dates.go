package loans

import "time"

// addMonths advances t by the given number of calendar months, clamping the
// day-of-month to the length of the target month. time.AddDate would
// normalize instead (Jan 31 + 1 month = Mar 2/3), which is wrong for due
// dates. The time of day is dropped; due dates are calendar dates.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
