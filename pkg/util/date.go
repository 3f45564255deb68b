package util

import "time"

// AlignBucket truncates a timestamp onto its timeframe bucket boundary.
// Day buckets align on UTC midnight.
func AlignBucket(t time.Time, tf string) time.Time {
	switch tf {
	case "hour":
		return t.Truncate(time.Hour)
	case "day":
		u := t.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(time.Minute)
	}
}

// NextDailyAfter returns the next wall-clock occurrence of hour:minute
// strictly after t, in t's location.
func NextDailyAfter(t time.Time, hour, minute int) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
