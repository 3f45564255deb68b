package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/service/quality"
	"CoinPulse/pkg/logger"
)

// IngestionPipeline runs acquisition passes: fetch samples, gate them for
// freshness, persist the accepted set, write it through to the cache and
// invalidate the chart windows touched by new history.
type IngestionPipeline struct {
	source    drepo.MarketSource
	store     drepo.SampleStore
	gate      *quality.Gate
	cache     *svccache.Gateway
	publisher drepo.Publisher // optional, nil disables the tee
	metrics   drepo.Metrics
	logger    *logger.Logger
}

func NewIngestionPipeline(
	source drepo.MarketSource,
	store drepo.SampleStore,
	gate *quality.Gate,
	cache *svccache.Gateway,
	publisher drepo.Publisher,
	metrics drepo.Metrics,
	log *logger.Logger,
) *IngestionPipeline {
	return &IngestionPipeline{
		source:    source,
		store:     store,
		gate:      gate,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    log,
	}
}

// RunOnce executes one full acquisition pass. It returns false only when
// the snapshot fetch itself fails or yields nothing; per-sample and
// per-row persistence failures are logged and skipped.
func (p *IngestionPipeline) RunOnce(ctx context.Context) bool {
	start := time.Now()

	samples, err := p.source.FetchSnapshot(ctx)
	if err != nil {
		p.metrics.RecordError("acquisition")
		p.logger.Error("snapshot acquisition failed", logger.Error(err))
		return false
	}
	if len(samples) == 0 {
		p.metrics.RecordError("acquisition")
		p.logger.Error("snapshot acquisition returned no samples")
		return false
	}

	accepted := p.persistSnapshot(ctx, samples)
	if len(accepted) > 0 {
		p.publish(ctx, accepted)
		p.writeThrough(ctx, accepted)
	}

	p.ingestHistorical(ctx)

	p.metrics.RecordLatency("run_once", time.Since(start).Seconds())
	p.logger.Info("ingestion pass complete",
		logger.Int("samples", len(samples)),
		logger.Int("accepted", len(accepted)),
		logger.Duration("took", time.Since(start)))
	return true
}

// RunRealtime executes a lightweight pass over current ticks only.
func (p *IngestionPipeline) RunRealtime(ctx context.Context) bool {
	start := time.Now()

	samples, err := p.source.FetchRealtime(ctx)
	if err != nil {
		p.metrics.RecordError("acquisition")
		p.logger.Error("realtime acquisition failed", logger.Error(err))
		return false
	}
	if len(samples) == 0 {
		p.metrics.RecordError("acquisition")
		p.logger.Error("realtime acquisition returned no samples")
		return false
	}

	accepted := p.persistSnapshot(ctx, samples)
	if len(accepted) > 0 {
		p.publish(ctx, accepted)
		p.writeThrough(ctx, accepted)
	}

	p.metrics.RecordLatency("run_realtime", time.Since(start).Seconds())
	return true
}

// IngestSample admits a single pushed sample, used by the streaming and
// topic intake paths. A gate refusal returns QualityRejectedError.
func (p *IngestionPipeline) IngestSample(ctx context.Context, s models.Sample) error {
	if !p.gate.Accept(s.Timestamp, drepo.TFMinute) {
		p.metrics.RecordSampleIngested("rejected")
		return &models.QualityRejectedError{
			Symbol: s.Symbol,
			Score:  p.gate.ScoreAt(s.Timestamp, drepo.TFMinute, time.Now()),
		}
	}
	if err := p.store.InsertSample(ctx, s); err != nil {
		p.metrics.RecordSampleIngested("failed")
		p.metrics.RecordError("persistence")
		return fmt.Errorf("insert sample %s: %w", s.Symbol, err)
	}
	p.metrics.RecordSampleIngested("accepted")
	p.metrics.RecordLastPrice(s.Symbol, s.Price)

	p.cache.PutSymbolPrices(ctx, []models.PriceView{models.ViewFromSample(s)})
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, s); err != nil {
			p.metrics.RecordError("publish")
			p.logger.Error("sample publish failed",
				logger.String("symbol", s.Symbol),
				logger.Error(err))
		}
	}
	return nil
}

// persistSnapshot gates each sample at minute cadence and inserts the
// accepted ones. Rejected samples never reach the store; a failed insert
// skips that sample only.
func (p *IngestionPipeline) persistSnapshot(ctx context.Context, samples []models.Sample) []models.Sample {
	accepted := make([]models.Sample, 0, len(samples))
	for _, s := range samples {
		if !p.gate.Accept(s.Timestamp, drepo.TFMinute) {
			p.metrics.RecordSampleIngested("rejected")
			p.logger.Warn("sample rejected by quality gate",
				logger.String("symbol", s.Symbol),
				logger.Float64("score", p.gate.ScoreAt(s.Timestamp, drepo.TFMinute, time.Now())),
				logger.Time("sample_ts", s.Timestamp))
			continue
		}
		if err := p.store.InsertSample(ctx, s); err != nil {
			p.metrics.RecordSampleIngested("failed")
			p.metrics.RecordError("persistence")
			p.logger.Error("sample insert failed",
				logger.String("symbol", s.Symbol),
				logger.Error(err))
			continue
		}
		p.metrics.RecordSampleIngested("accepted")
		p.metrics.RecordLastPrice(s.Symbol, s.Price)
		accepted = append(accepted, s)
	}
	return accepted
}

func (p *IngestionPipeline) publish(ctx context.Context, accepted []models.Sample) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishBatch(ctx, accepted); err != nil {
		p.metrics.RecordError("publish")
		p.logger.Error("sample batch publish failed", logger.Error(err))
	}
}

// writeThrough refreshes the latest snapshot and per-symbol rows from the
// accepted set. Views carry the upstream-reported change; the read path
// recomputes it from history once these entries expire.
func (p *IngestionPipeline) writeThrough(ctx context.Context, accepted []models.Sample) {
	views := make([]models.PriceView, len(accepted))
	for i, s := range accepted {
		views[i] = models.ViewFromSample(s)
	}
	p.cache.PutLatestPrices(ctx, views)
	p.cache.PutSymbolPrices(ctx, views)
}

// ingestHistorical persists the fetched OHLCV batches row by row and
// drops the chart windows that received new data. A fetch error here
// never fails the pass.
func (p *IngestionPipeline) ingestHistorical(ctx context.Context) {
	batches, err := p.source.FetchHistorical(ctx)
	if err != nil {
		p.metrics.RecordError("acquisition")
		p.logger.Error("historical acquisition failed", logger.Error(err))
		return
	}

	type window struct {
		symbol string
		tf     drepo.Timeframe
	}
	touched := make(map[window]struct{})

	var stored, failed int
	for tf, points := range batches {
		for _, point := range points {
			if err := p.store.InsertHistorical(ctx, tf, point); err != nil {
				failed++
				p.metrics.RecordError("persistence")
				p.logger.Error("historical insert failed",
					logger.String("symbol", point.Symbol),
					logger.String("timeframe", string(tf)),
					logger.Error(err))
				continue
			}
			stored++
			touched[window{point.Symbol, tf}] = struct{}{}
		}
	}

	for key := range touched {
		p.cache.InvalidateChart(ctx, key.symbol, key.tf)
	}
	if stored > 0 || failed > 0 {
		p.logger.Info("historical batch persisted",
			logger.Int("stored", stored),
			logger.Int("failed", failed),
			logger.Int("invalidated_charts", len(touched)))
	}
}
