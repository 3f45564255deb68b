package logger

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type capturePublisher struct {
	topics  chan string
	batches chan []LogEntry
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{topics: make(chan string, 4), batches: make(chan []LogEntry, 4)}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.topics <- topic
	p.batches <- payload.([]LogEntry)
	return nil
}

func waitBatch(t *testing.T, p *capturePublisher) []LogEntry {
	t.Helper()
	select {
	case b := <-p.batches:
		return b
	case <-time.After(2 * time.Second):
		t.Fatalf("no batch published")
		return nil
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "verbose"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestErrorLinesMirrorToCollector(t *testing.T) {
	l, err := New(&Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "app.log")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pub := newCapturePublisher()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	for i := 0; i < 2; i++ {
		l.Error("upstream failed", String("symbol", "BTC"), Int("attempt", i))
	}
	l.Info("not mirrored")
	l.RemoveCollector()

	batch := waitBatch(t, pub)
	if len(batch) != 1 {
		t.Fatalf("expected one aggregated entry, got %d", len(batch))
	}
	e := batch[0]
	if e.Level != "error" || e.Count != 2 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Fields["symbol"] != "BTC" || e.Fields["attempt"] != 1 {
		t.Fatalf("expected fields from the latest occurrence, got %v", e.Fields)
	}
	if !strings.Contains(e.Caller, "logger_test.go") {
		t.Fatalf("caller = %q", e.Caller)
	}
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := newCapturePublisher()
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "coinpulse.logs",
		Publisher:      pub,
	})
	defer c.Close()

	c.Record("warn", "slow response", nil, "a.go:1")
	c.Record("error", "timeout", nil, "b.go:2")

	batch := waitBatch(t, pub)
	if len(batch) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(batch))
	}
	if topic := <-pub.topics; topic != "coinpulse.logs" {
		t.Fatalf("topic = %q", topic)
	}
}

func TestCollectorCloseFlushesPending(t *testing.T) {
	pub := newCapturePublisher()
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	c.Record("warn", "disk almost full", map[string]interface{}{"pct": 93}, "c.go:3")
	c.Close()

	batch := waitBatch(t, pub)
	if len(batch) != 1 || batch[0].Message != "disk almost full" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}
