package repository

import "time"

// Timeframe identifies the bucket width of stored history.
type Timeframe string

const (
	TFMinute Timeframe = "minute"
	TFHour   Timeframe = "hour"
	TFDay    Timeframe = "day"
)

// Cadence returns the expected spacing between buckets of tf.
func (tf Timeframe) Cadence() time.Duration {
	switch tf {
	case TFMinute:
		return time.Minute
	case TFHour:
		return time.Hour
	case TFDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TFMinute, TFHour, TFDay:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TFHour }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}
