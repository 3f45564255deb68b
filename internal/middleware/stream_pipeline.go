package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
)

const (
	flushBackoffMin = 50 * time.Millisecond
	flushBackoffMax = 2 * time.Second
)

// Ingestor is the minimal intake the pipeline needs.
type Ingestor interface {
	IngestSample(ctx context.Context, s models.Sample) error
}

// StreamPipeline sits between the WebSocket feed and the ingestion path.
// It validates, throttles per symbol, optionally transforms, and buffers
// samples when the intake is unavailable. Gate rejections are dropped,
// never buffered: a stale sample only gets staler.
type StreamPipeline struct {
	ing       Ingestor
	metrics   domrepo.Metrics
	transform func(models.Sample) models.Sample
	throttle  *symbolThrottle
	maxRPS    int
	bufSize   int
	bufCh     chan models.Sample
	stopCh    chan struct{}

	mu      sync.Mutex
	started bool
}

type PipelineOption func(*StreamPipeline)

// WithMaxRPS caps accepted samples per second for each symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *StreamPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many samples can wait out an intake outage.
func WithBufferSize(n int) PipelineOption {
	return func(p *StreamPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform installs a hook that maps feed symbols onto tracked
// instrument names before validation.
func WithTransform(fn func(models.Sample) models.Sample) PipelineOption {
	return func(p *StreamPipeline) { p.transform = fn }
}

// NewStreamPipeline builds a pipeline with its defaults applied.
func NewStreamPipeline(ing Ingestor, metrics domrepo.Metrics, opts ...PipelineOption) *StreamPipeline {
	p := &StreamPipeline{
		ing:     ing,
		metrics: metrics,
		maxRPS:  20,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Sample, p.bufSize)
	p.throttle = newSymbolThrottle(p.maxRPS)
	return p
}

// Process validates, throttles, and forwards a sample to the intake,
// parking it in the buffer when the intake errors.
func (p *StreamPipeline) Process(ctx context.Context, s models.Sample) error {
	start := time.Now()
	if p.transform != nil {
		s = p.transform(s)
	}
	if err := checkSample(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.throttle.admit(s.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	err := p.ing.IngestSample(ctx, s)
	switch {
	case err == nil:
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
		return nil
	case models.IsQualityRejected(err):
		return nil
	}

	p.metrics.RecordError("pipeline_process")
	p.stash(s)
	return fmt.Errorf("pipeline intake: %w", err)
}

// Start launches the background flusher that retries buffered samples.
func (p *StreamPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.flushLoop(ctx)
}

// Stop halts the background flusher. Safe to call more than once.
func (p *StreamPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

func (p *StreamPipeline) flushLoop(ctx context.Context) {
	backoff := flushBackoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case s := <-p.bufCh:
			if p.deliver(ctx, s) {
				backoff = flushBackoffMin
				continue
			}
			p.metrics.RecordError("pipeline_flush")

			backoff *= 2
			if backoff > flushBackoffMax {
				backoff = flushBackoffMax
			}
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				return
			}
			select {
			case p.bufCh <- s:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// deliver reports whether the sample needs no further attempts, either
// because the intake took it or because it aged past the gate while queued.
func (p *StreamPipeline) deliver(ctx context.Context, s models.Sample) bool {
	err := p.ing.IngestSample(ctx, s)
	return err == nil || models.IsQualityRejected(err)
}

// stash parks a sample for the flusher, dropping it when the buffer is full.
func (p *StreamPipeline) stash(s models.Sample) {
	select {
	case p.bufCh <- s:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

func checkSample(s models.Sample) error {
	switch {
	case s.Symbol == "":
		return fmt.Errorf("symbol empty")
	case s.Timestamp.IsZero():
		return fmt.Errorf("timestamp invalid")
	case s.Price < 0 || s.Volume < 0:
		return fmt.Errorf("negative price/volume")
	}
	return nil
}

// symbolThrottle admits at most one sample per interval for each symbol.
type symbolThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newSymbolThrottle(maxRPS int) *symbolThrottle {
	t := &symbolThrottle{last: make(map[string]time.Time)}
	if maxRPS > 0 {
		t.interval = time.Second / time.Duration(maxRPS)
	}
	return t
}

func (t *symbolThrottle) admit(symbol string, now time.Time) bool {
	if t.interval <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[symbol]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[symbol] = now
	return true
}
