package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
)

type captureIngestor struct {
	mu      sync.Mutex
	samples []models.Sample
	err     error
}

func (c *captureIngestor) IngestSample(_ context.Context, s models.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.samples = append(c.samples, s)
	return nil
}

func (c *captureIngestor) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *captureIngestor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

type nullMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nullMetrics) RecordSampleIngested(string)        {}
func (m *nullMetrics) RecordQualityScore(string, float64) {}
func (m *nullMetrics) RecordCacheRequest(string, string)  {}
func (m *nullMetrics) RecordCacheDegraded(bool)           {}
func (m *nullMetrics) RecordJobRun(string, string)        {}
func (m *nullMetrics) RecordJobDuration(string, float64)  {}
func (m *nullMetrics) RecordLastPrice(string, float64)    {}
func (m *nullMetrics) RecordLatency(string, float64)      {}

func (m *nullMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}

func (m *nullMetrics) errCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func sample(symbol string) models.Sample {
	return models.Sample{Symbol: symbol, Price: 100, Volume: 1, Timestamp: time.Now().UTC()}
}

func TestProcessForwardsValidSample(t *testing.T) {
	ing := &captureIngestor{}
	p := NewStreamPipeline(ing, &nullMetrics{})

	if err := p.Process(context.Background(), sample("BTC")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ing.count() != 1 {
		t.Fatalf("ingested %d samples, want 1", ing.count())
	}
}

func TestProcessValidation(t *testing.T) {
	ing := &captureIngestor{}
	m := &nullMetrics{}
	p := NewStreamPipeline(ing, m)

	cases := []struct {
		name string
		s    models.Sample
	}{
		{"no symbol", models.Sample{Price: 100, Timestamp: time.Now()}},
		{"zero timestamp", models.Sample{Symbol: "BTC", Price: 100}},
		{"negative price", models.Sample{Symbol: "BTC", Price: -1, Timestamp: time.Now()}},
		{"negative volume", models.Sample{Symbol: "BTC", Price: 1, Volume: -3, Timestamp: time.Now()}},
	}
	for _, tc := range cases {
		if err := p.Process(context.Background(), tc.s); err == nil {
			t.Errorf("%s: Process = nil, want validation error", tc.name)
		}
	}
	if ing.count() != 0 {
		t.Errorf("invalid samples reached the intake: %d", ing.count())
	}
	if m.errCount("pipeline_validate") != len(cases) {
		t.Errorf("validate errors = %d, want %d", m.errCount("pipeline_validate"), len(cases))
	}
}

func TestProcessThrottlesBursts(t *testing.T) {
	ing := &captureIngestor{}
	m := &nullMetrics{}
	p := NewStreamPipeline(ing, m, WithMaxRPS(1))

	ctx := context.Background()
	if err := p.Process(ctx, sample("BTC")); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	// second sample inside the same second is dropped, not an error
	if err := p.Process(ctx, sample("BTC")); err != nil {
		t.Fatalf("throttled Process: %v", err)
	}
	if ing.count() != 1 {
		t.Fatalf("ingested %d samples, want 1 after throttle", ing.count())
	}
	if m.errCount("pipeline_throttle") != 1 {
		t.Errorf("throttle drops = %d, want 1", m.errCount("pipeline_throttle"))
	}

	// other symbols get their own budget
	if err := p.Process(ctx, sample("ETH")); err != nil {
		t.Fatalf("Process ETH: %v", err)
	}
	if ing.count() != 2 {
		t.Errorf("ingested %d samples, want 2", ing.count())
	}
}

func TestProcessTransform(t *testing.T) {
	ing := &captureIngestor{}
	p := NewStreamPipeline(ing, &nullMetrics{}, WithTransform(func(s models.Sample) models.Sample {
		s.Symbol = "BTC" // feed ticker -> tracked instrument
		return s
	}))

	if err := p.Process(context.Background(), sample("BTCUSDT")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ing.count() != 1 || ing.samples[0].Symbol != "BTC" {
		t.Fatalf("samples = %+v, want one mapped to BTC", ing.samples)
	}
}

func TestProcessDropsQualityRejections(t *testing.T) {
	ing := &captureIngestor{err: &models.QualityRejectedError{Symbol: "BTC", Score: 0.1}}
	p := NewStreamPipeline(ing, &nullMetrics{}, WithBufferSize(8))

	if err := p.Process(context.Background(), sample("BTC")); err != nil {
		t.Fatalf("Process = %v, want nil for a gate rejection", err)
	}
	if len(p.bufCh) != 0 {
		t.Errorf("buffered %d rejected samples, want 0", len(p.bufCh))
	}
}

func TestProcessBuffersIntakeFailures(t *testing.T) {
	ing := &captureIngestor{err: errors.New("store down")}
	m := &nullMetrics{}
	p := NewStreamPipeline(ing, m, WithBufferSize(8))

	if err := p.Process(context.Background(), sample("BTC")); err == nil {
		t.Fatal("Process = nil, want an intake error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("buffered %d samples, want 1", len(p.bufCh))
	}

	// once the intake recovers, the flusher drains the buffer
	ing.setErr(nil)
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for ing.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("buffered sample never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessBufferFull(t *testing.T) {
	ing := &captureIngestor{err: errors.New("store down")}
	m := &nullMetrics{}
	p := NewStreamPipeline(ing, m, WithBufferSize(1))

	ctx := context.Background()
	p.Process(ctx, sample("BTC"))
	p.Process(ctx, sample("ETH"))

	if len(p.bufCh) != 1 {
		t.Fatalf("buffer holds %d samples, want 1", len(p.bufCh))
	}
	if m.errCount("pipeline_buffer_full") != 1 {
		t.Errorf("buffer-full drops = %d, want 1", m.errCount("pipeline_buffer_full"))
	}
}

func TestStartStopIdempotent(t *testing.T) {
	p := NewStreamPipeline(&captureIngestor{}, &nullMetrics{})

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // second start is a no-op
	p.Stop()
	p.Stop() // second stop must not close stopCh again
}
