package repository

import (
	"context"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	pkgkafka "CoinPulse/pkg/kafka"
)

// SamplePublisher implements Publisher over Kafka. Messages are keyed by
// symbol so one instrument stays on one partition.
type SamplePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewSamplePublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &SamplePublisher{producer: producer, topic: topic}
}

func (p *SamplePublisher) Publish(ctx context.Context, s models.Sample) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Symbol), sampleMessage(s))
}

func (p *SamplePublisher) PublishBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(samples))
	for i, s := range samples {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(s.Symbol),
			Value: sampleMessage(s),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *SamplePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// outgoing message schema: {symbol, price, change_24h, volume, t}
func sampleMessage(s models.Sample) map[string]interface{} {
	return map[string]interface{}{
		"symbol":     s.Symbol,
		"price":      s.Price,
		"change_24h": s.Change24h,
		"volume":     s.Volume,
		"t":          s.Timestamp.Unix(),
	}
}
