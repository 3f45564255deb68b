package quality

import (
	"testing"
	"time"

	"CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"
)

type recordedMetrics struct {
	scores []float64
}

func (m *recordedMetrics) RecordSampleIngested(string)           {}
func (m *recordedMetrics) RecordQualityScore(_ string, s float64) { m.scores = append(m.scores, s) }
func (m *recordedMetrics) RecordCacheRequest(string, string)     {}
func (m *recordedMetrics) RecordCacheDegraded(bool)              {}
func (m *recordedMetrics) RecordJobRun(string, string)           {}
func (m *recordedMetrics) RecordJobDuration(string, float64)     {}
func (m *recordedMetrics) RecordError(string)                    {}
func (m *recordedMetrics) RecordLastPrice(string, float64)       {}
func (m *recordedMetrics) RecordLatency(string, float64)         {}

func newTestGate(t *testing.T) (*Gate, *recordedMetrics) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := &recordedMetrics{}
	return NewGate(0.5, 2, m, log), m
}

func TestScoreAtAnchors(t *testing.T) {
	g, _ := newTestGate(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   time.Time
		tf   repository.Timeframe
		want float64
	}{
		{"zero age", now, repository.TFMinute, 1.0},
		{"one cadence old", now.Add(-time.Minute), repository.TFMinute, 0.5},
		{"two cadences old", now.Add(-2 * time.Minute), repository.TFMinute, 0.0},
		{"far past", now.Add(-time.Hour), repository.TFMinute, 0.0},
		{"one cadence in the future", now.Add(time.Minute), repository.TFMinute, 0.5},
		{"hour cadence boundary", now.Add(-time.Hour), repository.TFHour, 0.5},
		{"zero timestamp", time.Time{}, repository.TFMinute, 0.0},
	}
	for _, tt := range tests {
		if got := g.ScoreAt(tt.ts, tt.tf, now); got != tt.want {
			t.Errorf("%s: ScoreAt = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScoreAtMonotone(t *testing.T) {
	g, _ := newTestGate(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := 1.1
	for age := time.Duration(0); age <= 3*time.Minute; age += 5 * time.Second {
		score := g.ScoreAt(now.Add(-age), repository.TFMinute, now)
		if score < 0 || score > 1 {
			t.Fatalf("score out of range at age %v: %v", age, score)
		}
		if score > prev {
			t.Fatalf("score increased with age at %v: %v > %v", age, score, prev)
		}
		prev = score
	}
}

func TestAcceptThreshold(t *testing.T) {
	g, m := newTestGate(t)

	if !g.Accept(time.Now(), repository.TFMinute) {
		t.Error("fresh sample rejected")
	}
	if g.Accept(time.Now().Add(-3*time.Minute), repository.TFMinute) {
		t.Error("stale sample accepted")
	}
	if len(m.scores) != 2 {
		t.Errorf("expected 2 recorded scores, got %d", len(m.scores))
	}
}

func TestNewGateDefaults(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	g := NewGate(0, 0, &recordedMetrics{}, log)
	if g.Threshold() != 0.5 {
		t.Errorf("default threshold = %v, want 0.5", g.Threshold())
	}
	now := time.Now()
	if got := g.ScoreAt(now.Add(-time.Minute), repository.TFMinute, now); got != 0.5 {
		t.Errorf("default reject multiple not applied, score = %v", got)
	}
}
