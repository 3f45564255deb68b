package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	applogger "CoinPulse/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes raw payloads from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics with a worker pool. Messages from the
// same topic partition always land on the same worker lane, so partition
// order holds without any locking.
//
// Offsets are committed after handling: a failed message is dead-lettered
// when a DLQ topic is configured, and the offset moves either way, so one
// poison message never wedges its partition.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan inbound
	dlq      *kafka.Writer
	hook     ConsumerHook

	ctx      context.Context
	cancel   context.CancelFunc
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup
	stopOnce sync.Once
}

type inbound struct {
	topic string
	msg   kafka.Message
}

func NewConsumer(l *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "default",
		Workers:    1,
		BufferSize: 10,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   10e3,
		MaxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      l,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		lanes:    make([]chan inbound, cfg.Workers),
		hook:     NoopHook{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan inbound, cfg.BufferSize)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	registerConsumerMetrics()
	return c, nil
}

// RegisterHandler adds the handler for its topic. Handlers must be
// registered before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.log.Warn("kafka handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook installs the lifecycle hook. Must be called before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}

	for i := range c.lanes {
		c.workerWg.Add(1)
		go c.worker(c.lanes[i])
	}

	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = reader
		c.readerWg.Add(1)
		go c.fetch(topic, reader)
	}

	c.log.Info("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", len(c.lanes)))
	return nil
}

// Stop drains the workers and closes the readers. In-flight handlers get
// to finish; unhandled messages stay uncommitted for redelivery.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.cancel()
		if stopErr = waitGroup(ctx, &c.readerWg); stopErr != nil {
			return
		}
		for _, lane := range c.lanes {
			close(lane)
		}
		if stopErr = waitGroup(ctx, &c.workerWg); stopErr != nil {
			return
		}
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka dlq close failed", applogger.Error(err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer stop: %w", ctx.Err())
	}
}

func (c *Consumer) fetch(topic string, reader *kafka.Reader) {
	defer c.readerWg.Done()

	errs := 0
	for {
		msg, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			errs++
			c.log.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, errs)):
			case <-c.ctx.Done():
				return
			}
			continue
		}
		errs = 0

		lane := c.lanes[laneFor(topic, msg.Partition, len(c.lanes))]
		select {
		case lane <- inbound{topic: topic, msg: msg}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.ctx.Done():
			return
		}
	}
}

func laneFor(topic string, partition, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	h.Write([]byte{byte(partition), byte(partition >> 8)})
	return int(h.Sum32() % uint32(lanes))
}

func (c *Consumer) worker(lane chan inbound) {
	defer c.workerWg.Done()
	for in := range lane {
		c.handle(in.topic, in.msg)
	}
}

// handle runs one message through the hook, the handler, and the retry
// policy, then commits its offset.
func (c *Consumer) handle(topic string, msg kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("kafka handler panic", applogger.String("topic", topic), applogger.Any("panic", r))
		}
	}()

	handler := c.handlers[topic]
	if handler == nil {
		return
	}

	start := time.Now()
	ctx, data, err := c.hook.BeforeHandle(context.Background(), topic, msg, msg.Value)
	if err == nil {
		for attempt := 0; ; attempt++ {
			err = handler.Handle(ctx, data)
			c.hook.AfterHandle(ctx, topic, msg, err)
			if err == nil || attempt >= c.cfg.RetryMax {
				break
			}
			consumerRetriesTotal.WithLabelValues(topic).Inc()
			select {
			case <-time.After(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt+1)):
			case <-c.ctx.Done():
				// shutting down; leave the offset uncommitted
				return
			}
		}
	}
	consumerHandleSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	if err != nil {
		c.hook.OnError(ctx, topic, msg, err)
		c.deadLetter(topic, msg)
	}
	c.commit(topic, msg)
}

// deadLetter forwards a failed message, best effort. Without a DLQ the
// message is dropped so the partition keeps moving.
func (c *Consumer) deadLetter(topic string, msg kafka.Message) {
	if c.dlq == nil {
		c.log.Error("kafka message dropped, no dlq configured",
			applogger.String("topic", topic),
			applogger.Int64("offset", msg.Offset))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
	})
	if err != nil {
		c.log.Error("kafka dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return
	}
	consumerDLQTotal.WithLabelValues(topic).Inc()
}

// commit moves the group offset past msg. A missed commit only means
// redelivery, so retries are bounded and failures are logged, not fatal.
func (c *Consumer) commit(topic string, msg kafka.Message) {
	reader := c.readers[topic]
	if reader == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Warn("kafka commit failed", applogger.String("topic", topic), applogger.Error(err))
}

// backoff grows exponentially from min, capped at max, with half-window
// jitter so competing retries spread out.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	half := int64(d) / 2
	return time.Duration(half + rand.Int63n(half+1))
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleSeconds *prometheus.HistogramVec
	consumerRetriesTotal  *prometheus.CounterVec
	consumerDLQTotal      *prometheus.CounterVec
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "consumer_queue_depth",
			Help:      "Messages waiting in a worker lane, sampled at enqueue.",
		}, []string{"topic"})
		consumerHandleSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "consumer_handle_seconds",
			Help:      "Time spent handling one message, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"})
		consumerRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "consumer_retries_total",
			Help:      "Handler retries.",
		}, []string{"topic"})
		consumerDLQTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coinpulse",
			Subsystem: "kafka",
			Name:      "consumer_dlq_total",
			Help:      "Messages forwarded to the dead-letter topic.",
		}, []string{"topic"})
		prometheus.MustRegister(consumerQueueDepth, consumerHandleSeconds, consumerRetriesTotal, consumerDLQTotal)
	})
}
