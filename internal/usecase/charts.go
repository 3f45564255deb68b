package usecase

import (
	"context"
	"strings"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/services/analytics"
	"CoinPulse/pkg/logger"
)

// GetChartParams selects one chart window. Timeframe and Limit fall back
// to defaults when absent or out of range.
type GetChartParams struct {
	Symbol    string
	Timeframe string
	Limit     int
}

// ChartsUseCase serves volatility-enriched OHLCV series. The cache holds
// the full enriched window per (symbol, timeframe); per-request limits are
// applied on the way out so one entry serves every limit.
type ChartsUseCase struct {
	store            drepo.SampleStore
	cache            *svccache.Gateway
	defaultLimit     int
	maxPoints        int
	volatilityWindow int
	logger           *logger.Logger
}

func NewChartsUseCase(
	store drepo.SampleStore,
	cache *svccache.Gateway,
	defaultLimit, maxPoints, volatilityWindow int,
	log *logger.Logger,
) *ChartsUseCase {
	if defaultLimit <= 0 {
		defaultLimit = 200
	}
	if maxPoints <= 0 {
		maxPoints = 2000
	}
	if volatilityWindow <= 0 {
		volatilityWindow = 10
	}
	return &ChartsUseCase{
		store:            store,
		cache:            cache,
		defaultLimit:     defaultLimit,
		maxPoints:        maxPoints,
		volatilityWindow: volatilityWindow,
		logger:           log,
	}
}

// GetChart returns the most recent points for one symbol and timeframe,
// ascending by bucket. A store failure yields an empty series.
func (uc *ChartsUseCase) GetChart(ctx context.Context, params GetChartParams) []models.ChartPoint {
	symbol := strings.ToUpper(strings.TrimSpace(params.Symbol))
	tf := drepo.NormalizeTimeframe(params.Timeframe)
	limit := params.Limit
	if limit <= 0 {
		limit = uc.defaultLimit
	}
	if limit > uc.maxPoints {
		limit = uc.maxPoints
	}

	if window, ok := uc.cache.GetChartSeries(ctx, symbol, tf); ok {
		return tail(window, limit)
	}

	window, err := uc.buildWindow(ctx, symbol, tf)
	if err != nil {
		uc.logger.Error("chart window load failed",
			logger.String("symbol", symbol),
			logger.String("timeframe", string(tf)),
			logger.Error(err))
		return []models.ChartPoint{}
	}
	if len(window) == 0 {
		return []models.ChartPoint{}
	}

	uc.cache.PutChartSeries(ctx, symbol, tf, window)
	return tail(window, limit)
}

// RebuildCharts recomputes and re-caches the full window for every tracked
// symbol across all timeframes. It reports an error when any pair failed,
// after attempting the rest.
func (uc *ChartsUseCase) RebuildCharts(ctx context.Context, symbols []string) error {
	var rebuilt, failed int
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		for _, tf := range []drepo.Timeframe{drepo.TFMinute, drepo.TFHour, drepo.TFDay} {
			window, err := uc.buildWindow(ctx, symbol, tf)
			if err != nil {
				failed++
				uc.logger.Error("chart rebuild failed",
					logger.String("symbol", symbol),
					logger.String("timeframe", string(tf)),
					logger.Error(err))
				continue
			}
			if len(window) == 0 {
				continue
			}
			uc.cache.PutChartSeries(ctx, symbol, tf, window)
			rebuilt++
		}
	}
	uc.logger.Info("chart rebuild complete",
		logger.Int("rebuilt", rebuilt),
		logger.Int("failed", failed))
	if failed > 0 {
		return models.ErrPersistence
	}
	return nil
}

func (uc *ChartsUseCase) buildWindow(ctx context.Context, symbol string, tf drepo.Timeframe) ([]models.ChartPoint, error) {
	points, err := uc.store.QueryHistory(ctx, symbol, tf, uc.maxPoints)
	if err != nil {
		return nil, err
	}
	return analytics.EnrichChart(points, uc.volatilityWindow), nil
}

// tail returns the last limit points of an ascending window.
func tail(points []models.ChartPoint, limit int) []models.ChartPoint {
	if len(points) <= limit {
		return points
	}
	return points[len(points)-limit:]
}
