package analytics

import (
	"context"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/quality"
	"CoinPulse/pkg/logger"
)

// healthWindow is how many recent buckets feed the gap and volatility checks.
const healthWindow = 10

// gapTolerance widens the nominal cadence before an interval counts as a gap.
const gapTolerance = 1.5

// Monitor builds the per-symbol data health report from stored history.
type Monitor struct {
	store  repository.SampleStore
	gate   *quality.Gate
	logger *logger.Logger
}

func NewMonitor(store repository.SampleStore, gate *quality.Gate, log *logger.Logger) *Monitor {
	return &Monitor{store: store, gate: gate, logger: log}
}

// BuildReport inspects the recent hour buckets of every symbol. A store
// error marks that symbol critical and never aborts the report.
func (m *Monitor) BuildReport(ctx context.Context, symbols []string) *models.QualityReport {
	report := &models.QualityReport{
		GeneratedAt: time.Now().UTC(),
		Symbols:     make([]models.SymbolHealth, 0, len(symbols)),
	}
	for _, symbol := range symbols {
		report.Symbols = append(report.Symbols, m.symbolHealth(ctx, symbol))
	}
	report.Count()

	m.logger.Info("quality report built",
		logger.Int("symbols", len(report.Symbols)),
		logger.Int("healthy", report.Healthy),
		logger.Int("warning", report.Warning),
		logger.Int("critical", report.Critical))
	return report
}

func (m *Monitor) symbolHealth(ctx context.Context, symbol string) models.SymbolHealth {
	health := models.SymbolHealth{Symbol: symbol, Status: models.HealthCritical}

	points, err := m.store.QueryHistory(ctx, symbol, repository.TFHour, healthWindow)
	if err != nil {
		m.logger.Warn("health query failed",
			logger.String("symbol", symbol),
			logger.Error(err))
		return health
	}
	if len(points) == 0 {
		return health
	}

	last := points[len(points)-1]
	health.LastSample = last.Bucket
	health.Freshness = m.gate.ScoreAt(last.Bucket, repository.TFHour, time.Now())
	health.Gaps = countGaps(points, repository.TFHour.Cadence())

	closes := make([]float64, len(points))
	volumes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
		volumes[i] = p.Volume
	}
	health.Volatility = PopulationStd(closes)
	health.VolumeAnomaly = VolumeAnomaly(volumes)

	switch {
	case health.Freshness >= 0.7:
		health.Status = models.HealthHealthy
	case health.Freshness >= 0.5:
		health.Status = models.HealthWarning
	default:
		health.Status = models.HealthCritical
	}
	return health
}

// countGaps counts successive buckets spaced wider than the tolerated
// cadence. Buckets must be in ascending order.
func countGaps(points []models.HistoricalPoint, cadence time.Duration) int {
	gaps := 0
	limit := time.Duration(gapTolerance * float64(cadence))
	for i := 1; i < len(points); i++ {
		if points[i].Bucket.Sub(points[i-1].Bucket) > limit {
			gaps++
		}
	}
	return gaps
}
