package usecase

import (
	"context"

	"CoinPulse/internal/domain/models"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/services/analytics"
)

// ReportsUseCase serves the per-symbol quality report, cache first.
type ReportsUseCase struct {
	monitor *analytics.Monitor
	cache   *svccache.Gateway
	symbols []string
}

func NewReportsUseCase(monitor *analytics.Monitor, cache *svccache.Gateway, symbols []string) *ReportsUseCase {
	return &ReportsUseCase{
		monitor: monitor,
		cache:   cache,
		symbols: symbols,
	}
}

// GetQualityReport returns the cached report, building a fresh one on miss.
func (uc *ReportsUseCase) GetQualityReport(ctx context.Context) *models.QualityReport {
	if report, ok := uc.cache.GetQualityReport(ctx); ok {
		return report
	}
	return uc.Rebuild(ctx)
}

// Rebuild computes a fresh report over the tracked symbols and re-caches it.
func (uc *ReportsUseCase) Rebuild(ctx context.Context) *models.QualityReport {
	report := uc.monitor.BuildReport(ctx, uc.symbols)
	uc.cache.PutQualityReport(ctx, report)
	return report
}
