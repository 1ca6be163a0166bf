package etl

import "time"

// TimeWindow is a half-open extraction window [Start, End). Extraction must
// be idempotent for identical windows: re-running the same window yields the
// same logical record set, modulo late-arriving data.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls within the window. The start bound is
// inclusive, the end bound exclusive.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// PreviousDay returns the window covering the full day before the reference
// time's day.
func PreviousDay(reference time.Time) TimeWindow {
	today := time.Date(
		reference.Year(), reference.Month(), reference.Day(),
		0, 0, 0, 0, reference.Location(),
	)
	return TimeWindow{Start: today.AddDate(0, 0, -1), End: today}
}

// PreviousHour returns the window covering the full hour before the
// reference time's hour.
func PreviousHour(reference time.Time) TimeWindow {
	thisHour := reference.Truncate(time.Hour)
	return TimeWindow{Start: thisHour.Add(-time.Hour), End: thisHour}
}
