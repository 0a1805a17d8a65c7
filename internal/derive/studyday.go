package derive

import "time"

// StudyDay converts an observation date and a subject anchor into the signed
// study day. The anchor date itself is Day 1 and the day before it is Day -1;
// there is no Day 0. If either input is absent the result is absent.
func StudyDay(obsDate, anchor *time.Time) *int {
	if obsDate == nil || anchor == nil {
		return nil
	}

	delta := daysBetween(*anchor, *obsDate)
	if delta >= 0 {
		delta++
	}
	return &delta
}

// daysBetween returns whole calendar days from a to b, ignoring clock time.
func daysBetween(a, b time.Time) int {
	return int(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

// dateOnly truncates a timestamp to its calendar date in UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// onOrBefore reports whether a's calendar date is on or before b's.
func onOrBefore(a, b time.Time) bool {
	return !dateOnly(a).After(dateOnly(b))
}

// after reports whether a's calendar date is strictly after b's.
func after(a, b time.Time) bool {
	return dateOnly(a).After(dateOnly(b))
}
