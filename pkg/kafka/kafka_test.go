package kafka

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffStaysWithinWindow(t *testing.T) {
	min, max := 50*time.Millisecond, 2*time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v outside (0, %v]", attempt, d, max)
		}
	}
}

func TestLaneForIsStable(t *testing.T) {
	want := laneFor("coinpulse.samples", 3, 8)
	for i := 0; i < 5; i++ {
		if got := laneFor("coinpulse.samples", 3, 8); got != want {
			t.Fatalf("lane changed between calls: %d then %d", want, got)
		}
	}
	if got := laneFor("coinpulse.samples", 3, 1); got != 0 {
		t.Fatalf("single lane must be 0, got %d", got)
	}
}

func TestEncodeValue(t *testing.T) {
	raw, err := encodeValue([]byte(`{"a":1}`))
	if err != nil || !bytes.Equal(raw, []byte(`{"a":1}`)) {
		t.Fatalf("bytes passthrough: %q, %v", raw, err)
	}

	s, err := encodeValue("plain")
	if err != nil || string(s) != "plain" {
		t.Fatalf("string passthrough: %q, %v", s, err)
	}

	j, err := encodeValue(map[string]int{"n": 2})
	if err != nil || string(j) != `{"n":2}` {
		t.Fatalf("json encode: %q, %v", j, err)
	}

	if _, err := encodeValue(make(chan int)); err == nil {
		t.Fatalf("expected error for unencodable value")
	}
}

type stampHook struct {
	tag   string
	fail  bool
	calls *[]string
}

func (h stampHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	*h.calls = append(*h.calls, "before:"+h.tag)
	if h.fail {
		return ctx, data, errors.New(h.tag + " rejected")
	}
	return ctx, append(data, h.tag...), nil
}

func (h stampHook) AfterHandle(_ context.Context, _ string, _ kafka.Message, _ error) {
	*h.calls = append(*h.calls, "after:"+h.tag)
}

func (h stampHook) OnError(_ context.Context, _ string, _ kafka.Message, _ error) {
	*h.calls = append(*h.calls, "error:"+h.tag)
}

func TestHookChainThreadsPayload(t *testing.T) {
	var calls []string
	chain := NewHookChain(stampHook{tag: "a", calls: &calls}, nil, stampHook{tag: "b", calls: &calls})
	if len(chain) != 2 {
		t.Fatalf("nil hooks must be filtered, got %d", len(chain))
	}

	_, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	if err != nil {
		t.Fatalf("BeforeHandle: %v", err)
	}
	if string(data) != "xab" {
		t.Fatalf("payload not threaded in order: %q", data)
	}

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil)
	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestHookChainStopsOnError(t *testing.T) {
	var calls []string
	chain := NewHookChain(stampHook{tag: "a", fail: true, calls: &calls}, stampHook{tag: "b", calls: &calls})

	_, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	if err == nil {
		t.Fatalf("expected error from failing hook")
	}
	if len(calls) != 1 || calls[0] != "before:a" {
		t.Fatalf("second hook must not run after failure: %v", calls)
	}
}
