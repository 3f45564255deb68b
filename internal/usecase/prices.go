package usecase

import (
	"context"
	"strings"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/pkg/logger"
)

// PricesUseCase serves the latest price read models, cache first, store on
// miss. Store reads recompute the 24h change from history so the served
// figure never depends on what the upstream reported.
type PricesUseCase struct {
	store  drepo.SampleStore
	cache  *svccache.Gateway
	recalc *FreshnessRecalculator
	logger *logger.Logger
}

func NewPricesUseCase(
	store drepo.SampleStore,
	cache *svccache.Gateway,
	recalc *FreshnessRecalculator,
	log *logger.Logger,
) *PricesUseCase {
	return &PricesUseCase{
		store:  store,
		cache:  cache,
		recalc: recalc,
		logger: log,
	}
}

// GetLatestPrices returns the most recent view per tracked symbol. A store
// failure on the miss path yields an empty slice, never an error page.
func (uc *PricesUseCase) GetLatestPrices(ctx context.Context) []models.PriceView {
	if views, ok := uc.cache.GetLatestPrices(ctx); ok {
		return views
	}

	views, err := uc.loadLatest(ctx)
	if err != nil {
		uc.logger.Error("latest prices load failed", logger.Error(err))
		return []models.PriceView{}
	}
	if len(views) == 0 {
		return []models.PriceView{}
	}

	uc.cache.PutLatestPrices(ctx, views)
	uc.cache.PutSymbolPrices(ctx, views)
	return views
}

// GetSymbolPrices returns views for the requested symbols in request order,
// skipping symbols with no data. Cached rows are used as-is; the rest are
// loaded from the store in one pass and warmed back.
func (uc *PricesUseCase) GetSymbolPrices(ctx context.Context, symbols []string) []models.PriceView {
	wanted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			wanted = append(wanted, sym)
		}
	}
	if len(wanted) == 0 {
		return []models.PriceView{}
	}

	found, _ := uc.cache.GetSymbolPrices(ctx, wanted)
	if found == nil {
		found = make(map[string]models.PriceView, len(wanted))
	}

	var missing []string
	for _, sym := range wanted {
		if _, ok := found[sym]; !ok {
			missing = append(missing, sym)
		}
	}

	if len(missing) > 0 {
		loaded, err := uc.loadLatest(ctx)
		if err != nil {
			uc.logger.Error("symbol prices load failed", logger.Error(err))
		} else {
			var warmed []models.PriceView
			for _, view := range loaded {
				for _, sym := range missing {
					if view.Symbol == sym {
						found[sym] = view
						warmed = append(warmed, view)
						break
					}
				}
			}
			if len(warmed) > 0 {
				uc.cache.PutSymbolPrices(ctx, warmed)
			}
		}
	}

	out := make([]models.PriceView, 0, len(wanted))
	for _, sym := range wanted {
		if view, ok := found[sym]; ok {
			out = append(out, view)
		}
	}
	return out
}

// loadLatest reads the freshest sample per symbol and recomputes each 24h
// change against the stored hour history, falling back to the reported
// figure when no reference close exists.
func (uc *PricesUseCase) loadLatest(ctx context.Context) ([]models.PriceView, error) {
	samples, err := uc.store.QueryLatest(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.PriceView, len(samples))
	for i, s := range samples {
		view := models.ViewFromSample(s)
		view.Change24h = uc.recalc.RecomputeChange(ctx, s.Symbol, s.Price, s.Change24h)
		views[i] = view
	}
	return views, nil
}
