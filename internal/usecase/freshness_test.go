package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
)

func TestRecomputeChange(t *testing.T) {
	store := &fakeStore{pointBefore: &models.HistoricalPoint{Symbol: "BTC", Close: 50000}}
	r := NewFreshnessRecalculator(store, 24*time.Hour, testLogger(t))

	got := r.RecomputeChange(context.Background(), "BTC", 75000, -1)
	if got != 50 {
		t.Errorf("RecomputeChange = %v, want 50", got)
	}

	got = r.RecomputeChange(context.Background(), "BTC", 25000, -1)
	if got != -50 {
		t.Errorf("RecomputeChange = %v, want -50", got)
	}
}

func TestRecomputeChangeFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"store error", &fakeStore{pointErr: errors.New("clickhouse down")}},
		{"no reference", &fakeStore{}},
		{"zero close", &fakeStore{pointBefore: &models.HistoricalPoint{Symbol: "BTC"}}},
	}
	for _, tt := range tests {
		r := NewFreshnessRecalculator(tt.store, 24*time.Hour, testLogger(t))
		if got := r.RecomputeChange(context.Background(), "BTC", 67000, 3.21); got != 3.21 {
			t.Errorf("%s: RecomputeChange = %v, want the 3.21 fallback", tt.name, got)
		}
	}
}
