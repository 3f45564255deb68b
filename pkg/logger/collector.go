package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries to a topic. The kafka
// producer satisfies this.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush cadence, 30s when zero
	CountThreshold int           // distinct entries that force a flush, 100 when zero
	Topic          string
	Publisher      Publisher
}

// LogEntry is one aggregated log statement. Repeated occurrences of the
// same level/caller/message bump Count; Fields holds the latest values.
type LogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type record struct {
	level   string
	message string
	caller  string
	fields  map[string]interface{}
	at      time.Time
}

// LogCollector aggregates warn and error lines and periodically publishes
// them as batches. A single goroutine owns the pending map, so recording
// never takes a lock.
type LogCollector struct {
	cfg     *CollectionConfig
	records chan record
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	c := &LogCollector{
		cfg:     cfg,
		records: make(chan record, 256),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Record queues one occurrence. It never blocks; when the collector cannot
// keep up the occurrence is dropped.
func (c *LogCollector) Record(level, message string, fields map[string]interface{}, caller string) {
	select {
	case c.records <- record{level: level, message: message, caller: caller, fields: fields, at: time.Now()}:
	default:
	}
}

// Close drains queued records, publishes what remains, and stops the
// collector.
func (c *LogCollector) Close() {
	close(c.done)
	c.wg.Wait()
}

func (c *LogCollector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	pending := make(map[string]*LogEntry)
	for {
		select {
		case r := <-c.records:
			c.absorb(pending, r)
			if len(pending) >= c.cfg.CountThreshold {
				c.publish(pending)
				pending = make(map[string]*LogEntry)
			}
		case <-ticker.C:
			if len(pending) > 0 {
				c.publish(pending)
				pending = make(map[string]*LogEntry)
			}
		case <-c.done:
			for {
				select {
				case r := <-c.records:
					c.absorb(pending, r)
				default:
					if len(pending) > 0 {
						c.publish(pending)
					}
					return
				}
			}
		}
	}
}

func (c *LogCollector) absorb(pending map[string]*LogEntry, r record) {
	key := r.level + "|" + r.caller + "|" + r.message
	if e, ok := pending[key]; ok {
		e.Count++
		e.LastSeen = r.at
		e.Fields = r.fields
		return
	}
	pending[key] = &LogEntry{
		Level:     r.level,
		Message:   r.message,
		Caller:    r.caller,
		Fields:    r.fields,
		Count:     1,
		FirstSeen: r.at,
		LastSeen:  r.at,
	}
}

func (c *LogCollector) publish(pending map[string]*LogEntry) {
	batch := make([]LogEntry, 0, len(pending))
	for _, e := range pending {
		batch = append(batch, *e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log collector publish: %v\n", err)
	}
}
