package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"CoinPulse/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode selects which halves of the queue a process runs.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// RedisQueue is a Redis-list backed job queue with scheduled retries and a
// dead-letter list. Pending messages live in <prefix>:messages, retries in
// the <prefix>:retry sorted set scored by due time, and exhausted messages
// in <prefix>:dlq.
type RedisQueue struct {
	log    *logger.Logger
	cfg    *QueueConfig
	client *redis.Client
	mode   QueueMode

	pendingKey string
	retryKey   string
	dlqKey     string

	mu      sync.RWMutex
	jobs    map[string]Job
	running atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	retryOnce sync.Once
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix overrides the default coinpulse:queue key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.pendingKey = prefix + ":messages"
		r.retryKey = prefix + ":retry"
		r.dlqKey = prefix + ":dlq"
	}
}

func NewRedisQueue(l *logger.Logger, cfg *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		log:    l,
		cfg:    cfg,
		client: client,
		mode:   mode,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	WithKeyPrefix("coinpulse:queue")(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob adds a job handler. Ignored in producer-only mode and for
// duplicate types.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.log.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.log.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start verifies the Redis connection and launches the workers.
func (r *RedisQueue) Start() error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.running.Store(false)
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
	}
	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("mode", r.mode.String()))
	return nil
}

// StartRetryProcessor launches the loop that moves due retries back to the
// pending list. Repeat calls are no-ops.
func (r *RedisQueue) StartRetryProcessor() {
	if r.mode == ModeProducerOnly {
		return
	}
	r.retryOnce.Do(func() {
		r.wg.Add(1)
		go r.retryLoop()
	})
}

// Stop waits for workers to finish their current message.
func (r *RedisQueue) Stop(ctx context.Context) error {
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue pushes one message onto the pending list.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if !r.running.Load() {
		return fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly {
		r.mu.RLock()
		_, known := r.jobs[msgType]
		r.mu.RUnlock()
		if !known {
			return fmt.Errorf("no job registered for type %s", msgType)
		}
	}
	if r.cfg.QueueSize > 0 {
		depth, err := r.client.LLen(ctx, r.pendingKey).Result()
		if err == nil && depth >= int64(r.cfg.QueueSize) {
			return fmt.Errorf("queue full: %d pending", depth)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.LPush(ctx, r.pendingKey, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", r.pendingKey, err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			r.log.Debug("queue worker stopped", logger.Int("worker", id))
			return
		default:
			r.dequeue()
		}
	}
}

// dequeue blocks up to a second for the next message and runs it.
func (r *RedisQueue) dequeue() {
	res, err := r.client.BRPop(r.ctx, time.Second, r.pendingKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return
		}
		r.log.Error("queue pop failed", logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.ctx.Done():
		}
		return
	}
	if len(res) != 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.log.Error("queue message corrupt", logger.Error(err))
		return
	}
	r.dispatch(msg)
}

func (r *RedisQueue) dispatch(msg Message) {
	r.mu.RLock()
	job := r.jobs[msg.Type]
	r.mu.RUnlock()
	if job == nil {
		r.log.Error("no job for message",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	err := job.Handle(r.ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		// shutdown mid-run; redelivery is up to the enqueuer
		return
	}
	r.retryOrBury(msg, job, err)
}

// retryOrBury schedules another attempt or, once attempts are spent, moves
// the message to the dead-letter list.
func (r *RedisQueue) retryOrBury(msg Message, job Job, cause error) {
	r.log.Error("job failed",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(cause))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.push(r.dlqKey, msg)
		r.log.Error("job moved to dead letter queue",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID))
		return
	}

	msg.Attempts++
	due := time.Now().Add(r.cfg.RetryDelay)
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.log.Error("schedule retry", logger.Error(err))
		return
	}
	r.log.Info("retry scheduled",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Time("due", due))
}

func (r *RedisQueue) push(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode message", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), key, data).Err(); err != nil {
		r.log.Error("lpush failed", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteDueRetries()
		}
	}
}

// promoteDueRetries moves messages whose due time has passed back onto the
// pending list.
func (r *RedisQueue) promoteDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error("fetch due retries", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey, member)
		pipe.LPush(r.ctx, r.pendingKey, member)
		if _, err := pipe.Exec(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("promote retry", logger.Error(err))
		}
	}
}
