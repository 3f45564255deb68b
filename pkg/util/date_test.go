package util

import (
	"testing"
	"time"
)

func TestAlignBucket(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 500, time.UTC)

	if got := AlignBucket(ts, "minute"); !got.Equal(time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("minute bucket: %v", got)
	}
	if got := AlignBucket(ts, "hour"); !got.Equal(time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("hour bucket: %v", got)
	}
	if got := AlignBucket(ts, "day"); !got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day bucket: %v", got)
	}
	// unknown timeframes fall back to minute buckets
	if got := AlignBucket(ts, "week"); !got.Equal(time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("fallback bucket: %v", got)
	}
}

func TestNextDailyAfter(t *testing.T) {
	now := time.Date(2024, 10, 10, 3, 0, 0, 0, time.UTC)

	got := NextDailyAfter(now, 2, 0)
	want := time.Date(2024, 10, 11, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("past occurrence should roll to next day: got %v want %v", got, want)
	}

	got = NextDailyAfter(now, 4, 30)
	want = time.Date(2024, 10, 10, 4, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("future occurrence today: got %v want %v", got, want)
	}

	got = NextDailyAfter(want, 4, 30)
	if !got.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("exact boundary should move a full day forward: got %v", got)
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("42", 7); got != 42 {
		t.Fatalf("ParseIntDefault(42) = %d", got)
	}
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("ParseIntDefault(empty) = %d", got)
	}
	if got := ParseIntDefault("4x2", 7); got != 7 {
		t.Fatalf("ParseIntDefault(malformed) = %d", got)
	}
}
