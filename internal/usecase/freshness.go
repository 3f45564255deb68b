package usecase

import (
	"context"
	"time"

	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"
)

// FreshnessRecalculator recomputes the 24h percent change from stored
// history instead of trusting the upstream-reported value, which may lag
// or use a different time base.
type FreshnessRecalculator struct {
	store  drepo.SampleStore
	window time.Duration
	logger *logger.Logger
}

func NewFreshnessRecalculator(store drepo.SampleStore, window time.Duration, log *logger.Logger) *FreshnessRecalculator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &FreshnessRecalculator{store: store, window: window, logger: log}
}

// RecomputeChange derives the percent change of currentPrice against the
// most recent stored close at or before the change window. A missing
// reference, a zero reference and a store error all return fallback; this
// call never fails the read path.
func (r *FreshnessRecalculator) RecomputeChange(ctx context.Context, symbol string, currentPrice, fallback float64) float64 {
	cutoff := time.Now().Add(-r.window)
	ref, err := r.store.QueryPointBefore(ctx, symbol, cutoff)
	if err != nil {
		r.logger.Warn("change recompute failed, using reported value",
			logger.String("symbol", symbol),
			logger.Error(err))
		return fallback
	}
	if ref == nil || ref.Close == 0 {
		r.logger.Debug("no reference close for change recompute",
			logger.String("symbol", symbol))
		return fallback
	}
	return (currentPrice - ref.Close) / ref.Close * 100
}
