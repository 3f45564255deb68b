package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// Message is one keyed payload for PublishBatch.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer publishes JSON payloads through a shared kafka-go writer.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1048576,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: no brokers configured")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}

	registerProducerMetrics()
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}}, nil
}

// Publish sends one payload to the topic. The key picks the partition when
// the hash balancer is active, which keeps per-key ordering.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.write(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage sends one unkeyed payload.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.write(ctx, topic, []Message{{Value: payload}})
}

// PublishBatch sends all messages in a single writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	return p.write(ctx, topic, messages)
}

func (p *Producer) write(ctx context.Context, topic string, messages []Message) error {
	msgs := make([]kafka.Message, len(messages))
	var size int64
	now := time.Now()
	for i, m := range messages {
		value, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{Topic: topic, Key: m.Key, Value: value, Time: now}
		size += int64(len(value))
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, msgs...)
	producerPublishSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	producerBytesTotal.WithLabelValues(topic).Add(float64(size))
	if err != nil {
		producerMessagesTotal.WithLabelValues(topic, "error").Add(float64(len(msgs)))
		return fmt.Errorf("write %d message(s) to %s: %w", len(msgs), topic, err)
	}
	producerMessagesTotal.WithLabelValues(topic, "ok").Add(float64(len(msgs)))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// encodeValue passes raw bytes and strings through untouched and marshals
// everything else as JSON.
func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case json.RawMessage:
		return val, nil
	case string:
		return []byte(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMetricsOnce    sync.Once
	producerMessagesTotal  *prometheus.CounterVec
	producerBytesTotal     *prometheus.CounterVec
	producerPublishSeconds *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		producerMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "producer_messages_total",
			Help:      "Messages handed to the writer, by result.",
		}, []string{"topic", "result"})
		producerBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "producer_bytes_total",
			Help:      "Payload bytes handed to the writer.",
		}, []string{"topic"})
		producerPublishSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "producer_publish_seconds",
			Help:      "WriteMessages latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"})
		prometheus.MustRegister(producerMessagesTotal, producerBytesTotal, producerPublishSeconds)
	})
}
