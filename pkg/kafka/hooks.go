package kafka

import (
	"context"

	applogger "CoinPulse/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may replace the
// context or payload; returning an error skips the handler and sends the
// message straight through error handling.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, topic string, msg kafka.Message, err error)
	OnError(ctx context.Context, topic string, msg kafka.Message, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, error) {}
func (NoopHook) OnError(context.Context, string, kafka.Message, error)     {}

type ctxKey string

// CtxTraceID carries the trace id extracted from message headers.
const CtxTraceID ctxKey = "trace_id"

// TraceHook copies the trace_id header, when present, into the handler
// context.
type TraceHook struct{}

func (TraceHook) BeforeHandle(ctx context.Context, _ string, msg kafka.Message, data []byte) (context.Context, []byte, error) {
	for _, h := range msg.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return context.WithValue(ctx, CtxTraceID, string(h.Value)), data, nil
		}
	}
	return ctx, data, nil
}

func (TraceHook) AfterHandle(context.Context, string, kafka.Message, error) {}
func (TraceHook) OnError(context.Context, string, kafka.Message, error)     {}

// NewLoggingHook reports messages that exhausted their retries through the
// application logger.
func NewLoggingHook(l *applogger.Logger) ConsumerHook {
	return &loggingHook{l: l}
}

type loggingHook struct{ l *applogger.Logger }

func (h *loggingHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}

func (h *loggingHook) AfterHandle(context.Context, string, kafka.Message, error) {}

func (h *loggingHook) OnError(ctx context.Context, topic string, msg kafka.Message, err error) {
	fields := []applogger.Field{
		applogger.String("topic", topic),
		applogger.Int("partition", msg.Partition),
		applogger.Int64("offset", msg.Offset),
		applogger.Error(err),
	}
	if id, ok := ctx.Value(CtxTraceID).(string); ok {
		fields = append(fields, applogger.String("trace_id", id))
	}
	h.l.Warn("kafka message failed", fields...)
}

// HookChain runs several hooks as one. BeforeHandle threads the context
// and payload through in order; AfterHandle unwinds in reverse.
type HookChain []ConsumerHook

func NewHookChain(hooks ...ConsumerHook) HookChain {
	chain := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c HookChain) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, []byte, error) {
	var err error
	for _, h := range c {
		if ctx, data, err = h.BeforeHandle(ctx, topic, msg, data); err != nil {
			return ctx, data, err
		}
	}
	return ctx, data, nil
}

func (c HookChain) AfterHandle(ctx context.Context, topic string, msg kafka.Message, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].AfterHandle(ctx, topic, msg, err)
	}
}

func (c HookChain) OnError(ctx context.Context, topic string, msg kafka.Message, err error) {
	for _, h := range c {
		h.OnError(ctx, topic, msg, err)
	}
}
