package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
)

func TestBackfillJobHandle(t *testing.T) {
	source := &fakeSource{history: hourPoints("BTC", 4)}
	store := &fakeStore{}
	gw := testGateway(t, newCountingMetrics())
	job := NewBackfillJob(source, store, gw, testLogger(t))
	ctx := context.Background()

	// a stale window that the backfill must drop
	gw.PutChartSeries(ctx, "BTC", drepo.TFHour, []models.ChartPoint{{Close: 1}})

	// the queue hands payloads over as raw JSON
	payload := json.RawMessage(`{"symbol":"btc","timeframe":"hour"}`)
	if err := job.Handle(ctx, payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(store.historical[drepo.TFHour]) != 4 {
		t.Errorf("stored %d rows, want 4", len(store.historical[drepo.TFHour]))
	}
	if _, ok := gw.GetChartSeries(ctx, "BTC", drepo.TFHour); ok {
		t.Error("chart window survived the backfill, want invalidated")
	}
}

func TestBackfillJobFetchErrorPropagates(t *testing.T) {
	source := &fakeSource{historyErr: errors.New("upstream 429")}
	job := NewBackfillJob(source, &fakeStore{}, testGateway(t, newCountingMetrics()), testLogger(t))

	err := job.Handle(context.Background(), BackfillPayload{Symbol: "BTC", Timeframe: "hour"})
	if err == nil {
		t.Fatal("Handle = nil, want an error so the queue retries")
	}
}

func TestBackfillJobRejectsBlankSymbol(t *testing.T) {
	job := NewBackfillJob(&fakeSource{}, &fakeStore{}, testGateway(t, newCountingMetrics()), testLogger(t))

	if err := job.Handle(context.Background(), BackfillPayload{Symbol: "  "}); err == nil {
		t.Fatal("Handle = nil for a blank symbol, want an error")
	}
}

func TestBackfillJobInsertFailuresDoNotAbort(t *testing.T) {
	source := &fakeSource{history: hourPoints("BTC", 2)}
	store := &fakeStore{historicalErr: errors.New("insert refused")}
	gw := testGateway(t, newCountingMetrics())
	job := NewBackfillJob(source, store, gw, testLogger(t))
	ctx := context.Background()

	gw.PutChartSeries(ctx, "BTC", drepo.TFHour, []models.ChartPoint{{Close: 1}})

	if err := job.Handle(ctx, BackfillPayload{Symbol: "BTC", Timeframe: "hour"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	// nothing stored, so the cached window must survive
	if _, ok := gw.GetChartSeries(ctx, "BTC", drepo.TFHour); !ok {
		t.Error("chart window dropped although no row was stored")
	}
}

func TestKafkaSamplesHandler(t *testing.T) {
	store := &fakeStore{}
	pipe, m, _ := newTestPipeline(t, &fakeSource{}, store, nil)
	h := NewKafkaSamplesHandler("coinpulse.samples", pipe, m, testLogger(t))

	if h.Topic() != "coinpulse.samples" {
		t.Fatalf("Topic = %q, want coinpulse.samples", h.Topic())
	}

	msg := []byte(`{"symbol":"BTC","price":67000,"change_24h":1.5,"volume":12,"t":` +
		timestampJSON(time.Now()) + `}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].Symbol != "BTC" {
		t.Fatalf("inserted = %+v, want the consumed sample", store.inserted)
	}
}

func TestKafkaSamplesHandlerMillisecondTimestamps(t *testing.T) {
	store := &fakeStore{}
	pipe, m, _ := newTestPipeline(t, &fakeSource{}, store, nil)
	h := NewKafkaSamplesHandler("coinpulse.samples", pipe, m, testLogger(t))

	msg := []byte(`{"symbol":"BTC","price":67000,"t":` +
		timestampJSON(time.Now()) + `000}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d samples, want 1; ms timestamp must be normalized", len(store.inserted))
	}
}

func TestKafkaSamplesHandlerDropsStale(t *testing.T) {
	store := &fakeStore{}
	pipe, m, _ := newTestPipeline(t, &fakeSource{}, store, nil)
	h := NewKafkaSamplesHandler("coinpulse.samples", pipe, m, testLogger(t))

	msg := []byte(`{"symbol":"BTC","price":67000,"t":` +
		timestampJSON(time.Now().Add(-time.Hour)) + `}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle = %v, want nil; stale samples must not be retried", err)
	}
	if len(store.inserted) != 0 {
		t.Errorf("stale sample reached the store: %+v", store.inserted)
	}
	if m.ingested["rejected"] != 1 {
		t.Errorf("rejected = %d, want 1", m.ingested["rejected"])
	}
}

func TestKafkaSamplesHandlerBadPayload(t *testing.T) {
	pipe, m, _ := newTestPipeline(t, &fakeSource{}, &fakeStore{}, nil)
	h := NewKafkaSamplesHandler("coinpulse.samples", pipe, m, testLogger(t))

	if err := h.Handle(context.Background(), []byte(`{"symbol":`)); err == nil {
		t.Fatal("Handle = nil for malformed JSON, want an error")
	}
	if m.errors["consumer_unmarshal"] != 1 {
		t.Errorf("unmarshal errors = %d, want 1", m.errors["consumer_unmarshal"])
	}
}

func timestampJSON(ts time.Time) string {
	return strconv.FormatInt(ts.Unix(), 10)
}
