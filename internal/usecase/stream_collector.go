package usecase

import (
	"context"
	"sync/atomic"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	mid "CoinPulse/internal/middleware"
	"CoinPulse/pkg/logger"
)

// StreamCollector drives the push feed: it connects the market stream,
// subscribes, and forwards every trade through the stream pipeline into
// the intake. The read channels die with the connection, so the collector
// re-reads after every reconnect.
type StreamCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.StreamPipeline
	metrics drepo.Metrics
	logger  *logger.Logger
	stopped atomic.Bool
}

func NewStreamCollector(stream drepo.MarketStream, pipe *mid.StreamPipeline, metrics drepo.Metrics, log *logger.Logger) *StreamCollector {
	return &StreamCollector{stream: stream, pipe: pipe, metrics: metrics, logger: log}
}

// IsConnected returns true if the market stream is connected.
func (c *StreamCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *StreamCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	go c.run(ctx)
	return nil
}

func (c *StreamCollector) run(ctx context.Context) {
	for {
		sampleCh, errCh := c.stream.Read(ctx)
		c.consume(ctx, sampleCh, errCh)
		if ctx.Err() != nil || c.stopped.Load() {
			return
		}
		c.metrics.RecordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			if ctx.Err() != nil || c.stopped.Load() {
				return
			}
			// Reconnect sleeps its delay; the next Read fails fast and
			// brings us back here
			c.logger.Error("stream reconnect failed", logger.Error(err))
		}
	}
}

func (c *StreamCollector) consume(ctx context.Context, samples <-chan models.Sample, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				c.logger.Warn("stream read failed", logger.Error(err))
			}
		case s, ok := <-samples:
			if !ok {
				return
			}
			_ = c.pipe.Process(ctx, s)
			c.metrics.RecordLastPrice(s.Symbol, s.Price)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *StreamCollector) Shutdown(ctx context.Context) error {
	c.stopped.Store(true)
	c.pipe.Stop()
	return c.stream.Close()
}
