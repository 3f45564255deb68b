package quality

import (
	"time"

	"CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"
)

// Gate scores sample timestamps for staleness and decides whether a
// sample is fresh enough to persist.
type Gate struct {
	threshold      float64
	rejectMultiple float64
	metrics        repository.Metrics
	logger         *logger.Logger
}

// NewGate builds a gate. Samples scoring below threshold are rejected;
// the score reaches zero at rejectMultiple cadence widths of staleness.
func NewGate(threshold, rejectMultiple float64, metrics repository.Metrics, log *logger.Logger) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	if rejectMultiple < 1 {
		rejectMultiple = 2
	}
	return &Gate{
		threshold:      threshold,
		rejectMultiple: rejectMultiple,
		metrics:        metrics,
		logger:         log,
	}
}

// ScoreAt rates the freshness of ts against now for the cadence of tf.
// Age zero scores 1.0 and the score decays linearly, reaching 0.0 at
// rejectMultiple cadence widths of staleness. Future timestamps are
// treated by distance from now. A zero timestamp scores 0.0.
func (g *Gate) ScoreAt(ts time.Time, tf repository.Timeframe, now time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	age := now.Sub(ts)
	if age < 0 {
		age = -age
	}
	window := time.Duration(g.rejectMultiple * float64(tf.Cadence()))
	if window <= 0 {
		return 0
	}
	score := 1 - float64(age)/float64(window)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Score rates ts against the current clock and records the observation.
func (g *Gate) Score(ts time.Time, tf repository.Timeframe) float64 {
	score := g.ScoreAt(ts, tf, time.Now())
	g.metrics.RecordQualityScore(string(tf), score)
	g.logger.Debug("quality score",
		logger.String("timeframe", string(tf)),
		logger.Time("sample_ts", ts),
		logger.Float64("score", score))
	return score
}

// Accept reports whether ts is fresh enough to persist at the cadence of tf.
func (g *Gate) Accept(ts time.Time, tf repository.Timeframe) bool {
	return g.Score(ts, tf) >= g.threshold
}

// Threshold returns the acceptance cutoff.
func (g *Gate) Threshold() float64 { return g.threshold }
