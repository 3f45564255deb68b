package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesIngested *prometheus.CounterVec
	qualityScore    *prometheus.HistogramVec
	cacheRequests   *prometheus.CounterVec
	cacheDegraded   prometheus.Gauge
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		samplesIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_samples_ingested_total",
				Help: "Samples seen by the ingestion pipeline by outcome",
			},
			[]string{"outcome"},
		),
		qualityScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpulse_quality_score",
				Help:    "Staleness scores assigned to sample timestamps",
				Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
			},
			[]string{"timeframe"},
		),
		cacheRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_cache_requests_total",
				Help: "Cache gateway lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		cacheDegraded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinpulse_cache_degraded",
				Help: "1 while the cache gateway is in always-miss mode",
			},
		),
		jobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_job_runs_total",
				Help: "Scheduled job runs by outcome",
			},
			[]string{"job", "status"},
		),
		jobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpulse_job_duration_seconds",
				Help:    "Duration of scheduled job runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinpulse_last_price",
				Help: "Last ingested price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSampleIngested records a pipeline outcome (accepted, rejected, failed).
func (r *Recorder) RecordSampleIngested(outcome string) {
	r.samplesIngested.WithLabelValues(outcome).Inc()
}

// RecordQualityScore records a staleness score observation.
func (r *Recorder) RecordQualityScore(timeframe string, score float64) {
	r.qualityScore.WithLabelValues(timeframe).Observe(score)
}

// RecordCacheRequest records a cache lookup result (hit, miss).
func (r *Recorder) RecordCacheRequest(kind, result string) {
	r.cacheRequests.WithLabelValues(kind, result).Inc()
}

// RecordCacheDegraded flips the degraded-mode gauge.
func (r *Recorder) RecordCacheDegraded(active bool) {
	if active {
		r.cacheDegraded.Set(1)
		return
	}
	r.cacheDegraded.Set(0)
}

// RecordJobRun records a scheduled job outcome (ok, failed, skipped).
func (r *Recorder) RecordJobRun(job, status string) {
	r.jobRuns.WithLabelValues(job, status).Inc()
}

// RecordJobDuration records how long a job run took.
func (r *Recorder) RecordJobDuration(job string, seconds float64) {
	r.jobDuration.WithLabelValues(job).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
