package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/quality"
	"CoinPulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSampleIngested(string)        {}
func (nopMetrics) RecordQualityScore(string, float64) {}
func (nopMetrics) RecordCacheRequest(string, string)  {}
func (nopMetrics) RecordCacheDegraded(bool)           {}
func (nopMetrics) RecordJobRun(string, string)        {}
func (nopMetrics) RecordJobDuration(string, float64)  {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}

type fakeStore struct {
	history map[string][]models.HistoricalPoint
	fail    map[string]error
}

func (s *fakeStore) Init(context.Context) error                        { return nil }
func (s *fakeStore) InsertSample(context.Context, models.Sample) error { return nil }
func (s *fakeStore) InsertHistorical(context.Context, repository.Timeframe, models.HistoricalPoint) error {
	return nil
}
func (s *fakeStore) QueryLatest(context.Context) ([]models.Sample, error) { return nil, nil }
func (s *fakeStore) QueryHistory(_ context.Context, symbol string, _ repository.Timeframe, limit int) ([]models.HistoricalPoint, error) {
	if err := s.fail[symbol]; err != nil {
		return nil, err
	}
	points := s.history[symbol]
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}
func (s *fakeStore) QueryPointBefore(context.Context, string, time.Time) (*models.HistoricalPoint, error) {
	return nil, nil
}
func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

func hourly(end time.Time, closes ...float64) []models.HistoricalPoint {
	points := make([]models.HistoricalPoint, len(closes))
	for i, c := range closes {
		points[i] = models.HistoricalPoint{
			Bucket: end.Add(-time.Duration(len(closes)-1-i) * time.Hour),
			Close:  c,
			Volume: 100 + float64(i),
		}
	}
	return points
}

func TestBuildReport(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	gate := quality.NewGate(0.5, 2, nopMetrics{}, log)
	now := time.Now().UTC()

	store := &fakeStore{
		history: map[string][]models.HistoricalPoint{
			"BTC": hourly(now, 100, 101, 102, 103, 104),
			"ETH": hourly(now.Add(-45*time.Minute), 10, 11, 12),
			"XRP": hourly(now.Add(-3*time.Hour), 1, 2),
		},
		fail: map[string]error{"SOL": errors.New("store down")},
	}
	monitor := NewMonitor(store, gate, log)

	report := monitor.BuildReport(context.Background(), []string{"BTC", "ETH", "XRP", "SOL", "DOGE"})
	if len(report.Symbols) != 5 {
		t.Fatalf("symbols = %d, want 5", len(report.Symbols))
	}

	byName := make(map[string]models.SymbolHealth, len(report.Symbols))
	for _, h := range report.Symbols {
		byName[h.Symbol] = h
	}

	if got := byName["BTC"]; got.Status != models.HealthHealthy {
		t.Errorf("BTC status = %s, want healthy (freshness %v)", got.Status, got.Freshness)
	}
	if got := byName["ETH"]; got.Status != models.HealthWarning {
		t.Errorf("ETH status = %s, want warning (freshness %v)", got.Status, got.Freshness)
	}
	if got := byName["XRP"]; got.Status != models.HealthCritical {
		t.Errorf("XRP status = %s, want critical (freshness %v)", got.Status, got.Freshness)
	}
	if got := byName["SOL"]; got.Status != models.HealthCritical {
		t.Errorf("store error should leave SOL critical, got %s", got.Status)
	}
	if got := byName["DOGE"]; got.Status != models.HealthCritical || !got.LastSample.IsZero() {
		t.Errorf("no data should leave DOGE critical with zero last sample, got %+v", got)
	}

	if report.Healthy != 1 || report.Warning != 1 || report.Critical != 3 {
		t.Errorf("totals = %d/%d/%d, want 1/1/3", report.Healthy, report.Warning, report.Critical)
	}
	if byName["BTC"].Volatility == 0 {
		t.Error("BTC volatility should be non-zero")
	}
}

func TestBuildReportDetectsGaps(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	gate := quality.NewGate(0.5, 2, nopMetrics{}, log)
	now := time.Now().UTC()

	store := &fakeStore{history: map[string][]models.HistoricalPoint{
		"BTC": {
			{Bucket: now.Add(-5 * time.Hour), Close: 1, Volume: 1},
			{Bucket: now.Add(-4 * time.Hour), Close: 2, Volume: 1},
			{Bucket: now.Add(-2 * time.Hour), Close: 3, Volume: 1}, // 2h jump
			{Bucket: now.Add(-time.Hour), Close: 4, Volume: 1},
			{Bucket: now, Close: 5, Volume: 1},
		},
	}}
	monitor := NewMonitor(store, gate, log)

	report := monitor.BuildReport(context.Background(), []string{"BTC"})
	if got := report.Symbols[0].Gaps; got != 1 {
		t.Errorf("gaps = %d, want 1", got)
	}
}
