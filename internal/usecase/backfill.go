package usecase

import (
	"context"
	"fmt"
	"strings"

	drepo "CoinPulse/internal/domain/repository"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/queue"
)

// BackfillPayload selects one symbol/timeframe window to re-pull.
type BackfillPayload struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// BackfillJob re-pulls history for one symbol and timeframe on demand and
// drops the matching chart window. Fetch failures propagate so the queue
// retries and eventually dead-letters the request.
type BackfillJob struct {
	source drepo.MarketSource
	store  drepo.SampleStore
	cache  *svccache.Gateway
	logger *logger.Logger
}

func NewBackfillJob(source drepo.MarketSource, store drepo.SampleStore, cache *svccache.Gateway, log *logger.Logger) *BackfillJob {
	return &BackfillJob{source: source, store: store, cache: cache, logger: log}
}

func (j *BackfillJob) Name() string { return "backfill" }
func (j *BackfillJob) Type() string { return "backfill" }

func (j *BackfillJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[BackfillPayload](payload)
	if err != nil {
		return fmt.Errorf("parse backfill payload: %w", err)
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return fmt.Errorf("backfill payload missing symbol")
	}
	tf := drepo.NormalizeTimeframe(p.Timeframe)

	points, err := j.source.FetchHistory(ctx, symbol, tf)
	if err != nil {
		return fmt.Errorf("backfill fetch %s %s: %w", symbol, tf, err)
	}

	var stored, failed int
	for _, point := range points {
		if err := j.store.InsertHistorical(ctx, tf, point); err != nil {
			failed++
			j.logger.Error("backfill insert failed",
				logger.String("symbol", symbol),
				logger.String("timeframe", string(tf)),
				logger.Error(err))
			continue
		}
		stored++
	}
	if stored > 0 {
		j.cache.InvalidateChart(ctx, symbol, tf)
	}

	j.logger.Info("backfill complete",
		logger.String("symbol", symbol),
		logger.String("timeframe", string(tf)),
		logger.Int("stored", stored),
		logger.Int("failed", failed))
	return nil
}

var _ queue.Job = (*BackfillJob)(nil)
