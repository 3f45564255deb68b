package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	pkgkafka "CoinPulse/pkg/kafka"
	"CoinPulse/pkg/logger"
)

// KafkaSamplesHandler consumes published samples back off the topic and
// admits them through the same gate the pull paths use. Gate rejections
// are final; only real failures are surfaced for retry.
type KafkaSamplesHandler struct {
	topic    string
	pipeline *IngestionPipeline
	metrics  drepo.Metrics
	logger   *logger.Logger
}

func NewKafkaSamplesHandler(topic string, pipeline *IngestionPipeline, metrics drepo.Metrics, log *logger.Logger) *KafkaSamplesHandler {
	return &KafkaSamplesHandler{topic: topic, pipeline: pipeline, metrics: metrics, logger: log}
}

func (h *KafkaSamplesHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, price, change_24h, volume, t}
func (h *KafkaSamplesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Change24h float64 `json:"change_24h"`
		Volume    float64 `json:"volume"`
		T         int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(time.Unix(m.T, 0)).Seconds())

	err := h.pipeline.IngestSample(ctx, models.Sample{
		Symbol:    m.Symbol,
		Price:     m.Price,
		Change24h: m.Change24h,
		Volume:    m.Volume,
		Timestamp: time.Unix(m.T, 0).UTC(),
	})
	if models.IsQualityRejected(err) {
		h.logger.Debug("stale sample dropped from topic",
			logger.String("symbol", m.Symbol),
			logger.Error(err))
		return nil
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaSamplesHandler)(nil)
