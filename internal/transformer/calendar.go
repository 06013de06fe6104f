package transformer

import "time"

// StartTime converts epoch milliseconds to the wall clock reading in loc.
// The result is tagged UTC so drivers store the reading unchanged in a
// timezone-naive column.
func StartTime(tsMillis int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMilli(tsMillis).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Calendar derives the time dimension columns. Week is the ISO 8601 week
// number and Weekday counts from Monday = 0.
func Calendar(t time.Time) TimeRow {
	_, week := t.ISOWeek()
	return TimeRow{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}
