package repository

import (
	"context"
	"time"

	"CoinPulse/internal/domain/models"
)

// MarketSource pulls samples and history from the upstream market API.
type MarketSource interface {
	FetchSnapshot(ctx context.Context) ([]models.Sample, error)
	FetchHistorical(ctx context.Context) (map[Timeframe][]models.HistoricalPoint, error)
	FetchRealtime(ctx context.Context) ([]models.Sample, error)
	FetchHistory(ctx context.Context, symbol string, tf Timeframe) ([]models.HistoricalPoint, error)
}

// MarketStream is an optional push source of samples.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Sample, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher tees accepted samples to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, s models.Sample) error
	PublishBatch(ctx context.Context, samples []models.Sample) error
	Close() error
}

// SampleStore persists samples and timeframe history.
type SampleStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	InsertSample(ctx context.Context, s models.Sample) error
	InsertHistorical(ctx context.Context, tf Timeframe, p models.HistoricalPoint) error
	// QueryLatest returns the most recent sample per symbol.
	QueryLatest(ctx context.Context) ([]models.Sample, error)
	// QueryHistory returns up to limit buckets in ascending order.
	QueryHistory(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.HistoricalPoint, error)
	// QueryPointBefore returns the most recent hour bucket at or before
	// cutoff, or (nil, nil) when the symbol has no history that old.
	QueryPointBefore(ctx context.Context, symbol string, cutoff time.Time) (*models.HistoricalPoint, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordSampleIngested(outcome string)
	RecordQualityScore(timeframe string, score float64)
	RecordCacheRequest(kind, result string)
	RecordCacheDegraded(active bool)
	RecordJobRun(job, status string)
	RecordJobDuration(job string, seconds float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
