package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	backend "CoinPulse/pkg/cache"
	"CoinPulse/pkg/logger"
)

// Key kinds, used for metrics labels and log fields.
const (
	kindLatest = "latest"
	kindSymbol = "symbol"
	kindChart  = "chart"
	kindReport = "report"
)

const (
	keyLatest = "prices:latest"
	keyReport = "quality:report"
)

func symbolKey(symbol string) string {
	return backend.GenerateKey("prices:sym", strings.ToUpper(symbol))
}

func chartKey(symbol string, tf repository.Timeframe) string {
	return backend.GenerateKeyWithParams("chart", strings.ToUpper(symbol), string(tf))
}

// Config carries the per-kind TTLs and the degraded-mode probe cooldown.
type Config struct {
	Backend       string
	LatestTTL     time.Duration
	SymbolTTL     time.Duration
	ChartTTL      time.Duration
	ReportTTL     time.Duration
	ProbeCooldown time.Duration
}

// Gateway is the typed cache-aside facade over the cache backend. Reads
// return (value, ok); any backend failure degrades to a miss, flips the
// gateway into degraded mode, and is never surfaced to callers. While
// degraded every get misses immediately and every put or invalidate is a
// no-op; a single Ping probe per cooldown window restores normal mode.
type Gateway struct {
	svc     backend.Service
	cfg     Config
	metrics repository.Metrics
	logger  *logger.Logger

	available atomic.Bool
	probeMu   sync.Mutex
	lastProbe time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64
}

// NewGateway probes svc once and starts degraded when it is nil or
// unreachable. Zero config values fall back to the standard TTL set.
func NewGateway(svc backend.Service, cfg Config, metrics repository.Metrics, log *logger.Logger) *Gateway {
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = 20 * time.Second
	}
	if cfg.SymbolTTL <= 0 {
		cfg.SymbolTTL = 30 * time.Second
	}
	if cfg.ChartTTL <= 0 {
		cfg.ChartTTL = 2 * time.Minute
	}
	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = 10 * time.Minute
	}
	if cfg.ProbeCooldown <= 0 {
		cfg.ProbeCooldown = 30 * time.Second
	}

	g := &Gateway{svc: svc, cfg: cfg, metrics: metrics, logger: log}

	if svc == nil {
		g.metrics.RecordCacheDegraded(true)
		g.logger.Warn("no cache backend configured, gateway permanently degraded")
		return g
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		g.lastProbe = time.Now()
		g.metrics.RecordCacheDegraded(true)
		g.logger.Warn("cache backend unreachable, starting degraded", logger.Error(err))
		return g
	}

	g.available.Store(true)
	g.metrics.RecordCacheDegraded(false)
	return g
}

// Available reports whether the backend is currently usable.
func (g *Gateway) Available() bool { return g.available.Load() }

// Close releases the underlying backend.
func (g *Gateway) Close() error {
	if g.svc == nil {
		return nil
	}
	return g.svc.Close()
}

// ready returns true when the backend is usable, probing it at most once
// per cooldown window while degraded.
func (g *Gateway) ready(ctx context.Context) bool {
	if g.available.Load() {
		return true
	}
	if g.svc == nil {
		return false
	}

	g.probeMu.Lock()
	if time.Since(g.lastProbe) < g.cfg.ProbeCooldown {
		g.probeMu.Unlock()
		return false
	}
	g.lastProbe = time.Now()
	g.probeMu.Unlock()

	if err := g.svc.Ping(ctx); err != nil {
		g.logger.Debug("cache probe failed", logger.Error(err))
		return false
	}
	g.available.Store(true)
	g.metrics.RecordCacheDegraded(false)
	g.logger.Info("cache backend recovered")
	return true
}

func (g *Gateway) degrade(err error) {
	if g.available.CompareAndSwap(true, false) {
		g.probeMu.Lock()
		g.lastProbe = time.Now()
		g.probeMu.Unlock()
		g.metrics.RecordCacheDegraded(true)
		g.logger.Error("cache backend unavailable, entering degraded mode", logger.Error(err))
	}
}

func (g *Gateway) hit(kind string) {
	g.hits.Add(1)
	g.metrics.RecordCacheRequest(kind, "hit")
}

func (g *Gateway) missed(kind string) {
	g.misses.Add(1)
	g.metrics.RecordCacheRequest(kind, "miss")
}

func (g *Gateway) get(ctx context.Context, kind, key string, dest interface{}) bool {
	if !g.ready(ctx) {
		g.missed(kind)
		return false
	}
	err := g.svc.Get(ctx, key, dest)
	if err == nil {
		g.hit(kind)
		return true
	}
	if errors.Is(err, backend.ErrCacheMiss) {
		g.logger.Debug("cache miss", logger.String("kind", kind), logger.String("key", key))
	} else {
		g.degrade(err)
	}
	g.missed(kind)
	return false
}

func (g *Gateway) put(ctx context.Context, kind, key string, value interface{}, ttl time.Duration) {
	if !g.ready(ctx) {
		return
	}
	if err := g.svc.Set(ctx, key, value, ttl); err != nil {
		g.degrade(err)
		return
	}
	g.writes.Add(1)
	g.metrics.RecordCacheRequest(kind, "write")
	g.logger.Debug("cache write", logger.String("kind", kind), logger.String("key", key))
}

// GetLatestPrices returns the cached full snapshot.
func (g *Gateway) GetLatestPrices(ctx context.Context) ([]models.PriceView, bool) {
	var views []models.PriceView
	if !g.get(ctx, kindLatest, keyLatest, &views) {
		return nil, false
	}
	return views, true
}

// PutLatestPrices caches the full snapshot.
func (g *Gateway) PutLatestPrices(ctx context.Context, views []models.PriceView) {
	g.put(ctx, kindLatest, keyLatest, views, g.cfg.LatestTTL)
}

// GetSymbolPrices bulk-reads per-symbol rows. The returned map holds only
// the symbols found; ok is false when nothing usable came back.
func (g *Gateway) GetSymbolPrices(ctx context.Context, symbols []string) (map[string]models.PriceView, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	if !g.ready(ctx) {
		g.missed(kindSymbol)
		return nil, false
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = symbolKey(s)
	}
	found, err := backend.MGetTyped[models.PriceView](ctx, g.svc, keys...)
	if err != nil {
		g.degrade(err)
		g.missed(kindSymbol)
		return nil, false
	}

	out := make(map[string]models.PriceView, len(found))
	for i, s := range symbols {
		if v, ok := found[keys[i]]; ok {
			out[strings.ToUpper(s)] = v
		}
	}
	if len(out) == 0 {
		g.missed(kindSymbol)
		return nil, false
	}
	g.hit(kindSymbol)
	return out, true
}

// PutSymbolPrices bulk-writes per-symbol rows.
func (g *Gateway) PutSymbolPrices(ctx context.Context, views []models.PriceView) {
	if len(views) == 0 || !g.ready(ctx) {
		return
	}
	kv := make(map[string]interface{}, len(views))
	for _, v := range views {
		kv[symbolKey(v.Symbol)] = v
	}
	if err := g.svc.MSet(ctx, kv, g.cfg.SymbolTTL); err != nil {
		g.degrade(err)
		return
	}
	g.writes.Add(uint64(len(views)))
	g.metrics.RecordCacheRequest(kindSymbol, "write")
	g.logger.Debug("cache write", logger.String("kind", kindSymbol), logger.Int("rows", len(views)))
}

// GetChartSeries returns the cached full chart window for symbol and tf.
// Callers slice the window themselves; the request limit is never part of
// the key.
func (g *Gateway) GetChartSeries(ctx context.Context, symbol string, tf repository.Timeframe) ([]models.ChartPoint, bool) {
	var points []models.ChartPoint
	if !g.get(ctx, kindChart, chartKey(symbol, tf), &points) {
		return nil, false
	}
	return points, true
}

// PutChartSeries caches the full chart window for symbol and tf.
func (g *Gateway) PutChartSeries(ctx context.Context, symbol string, tf repository.Timeframe, points []models.ChartPoint) {
	g.put(ctx, kindChart, chartKey(symbol, tf), points, g.cfg.ChartTTL)
}

// GetQualityReport returns the cached health report.
func (g *Gateway) GetQualityReport(ctx context.Context) (*models.QualityReport, bool) {
	var report models.QualityReport
	if !g.get(ctx, kindReport, keyReport, &report) {
		return nil, false
	}
	return &report, true
}

// PutQualityReport caches the health report.
func (g *Gateway) PutQualityReport(ctx context.Context, report *models.QualityReport) {
	g.put(ctx, kindReport, keyReport, report, g.cfg.ReportTTL)
}

// InvalidateChart drops one chart window.
func (g *Gateway) InvalidateChart(ctx context.Context, symbol string, tf repository.Timeframe) {
	if !g.ready(ctx) {
		return
	}
	if err := g.svc.Delete(ctx, chartKey(symbol, tf)); err != nil {
		g.degrade(err)
	}
}

// InvalidateSymbol drops every chart window plus the price row for one
// instrument.
func (g *Gateway) InvalidateSymbol(ctx context.Context, symbol string) {
	if !g.ready(ctx) {
		return
	}
	pattern := backend.BuildPattern(backend.GenerateKey("chart", strings.ToUpper(symbol)) + ":")
	if _, err := g.svc.DeleteByPattern(ctx, pattern); err != nil {
		g.degrade(err)
		return
	}
	if err := g.svc.Delete(ctx, symbolKey(symbol)); err != nil {
		g.degrade(err)
	}
}

// Invalidate clears a scope of the gateway namespace and returns the
// number of keys removed. Scopes: all, latest, charts, quality. While
// degraded it is a no-op returning zero.
func (g *Gateway) Invalidate(ctx context.Context, scope string) (int64, error) {
	var pattern string
	switch scope {
	case "", "all":
		pattern = "*"
	case "latest":
		pattern = backend.BuildPattern("prices:")
	case "charts":
		pattern = backend.BuildPattern("chart:")
	case "quality":
		pattern = backend.BuildPattern("quality:")
	default:
		return 0, fmt.Errorf("unknown cache scope %q", scope)
	}

	if !g.ready(ctx) {
		return 0, nil
	}
	cleared, err := g.svc.DeleteByPattern(ctx, pattern)
	if err != nil {
		g.degrade(err)
		return 0, nil
	}
	g.logger.Info("cache invalidated",
		logger.String("scope", scope),
		logger.Int64("cleared", cleared))
	return cleared, nil
}

// Stats snapshots the in-process counters plus a live key count when the
// backend is reachable.
func (g *Gateway) Stats(ctx context.Context) models.CacheStats {
	stats := models.CacheStats{
		Backend:   g.cfg.Backend,
		Available: g.available.Load(),
		Hits:      g.hits.Load(),
		Misses:    g.misses.Load(),
		Writes:    g.writes.Load(),
		UpdatedAt: time.Now().UTC(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if stats.Available {
		if n, err := g.svc.CountByPattern(ctx, "*"); err == nil {
			stats.Keys = n
		} else {
			g.degrade(err)
			stats.Available = false
		}
	}
	return stats
}
