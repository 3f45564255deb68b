package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/ratelimit"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string, symbols []string) *Client {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewClient(Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Symbols:      symbols,
		HistoryLimit: 3,
	}, ratelimit.New(), log)
}

func TestFetchSnapshot(t *testing.T) {
	var gotPath, gotAuth, gotInstruments string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotInstruments = r.URL.Query().Get("instruments")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Data":{
			"BTC-USD":{"VALUE":65000.5,"CURRENT_DAY_CHANGE_PERCENTAGE":2.1,"VALUE_LAST_UPDATE_TS":1748779200},
			"ETH-USD":{"VALUE":3200,"CURRENT_DAY_CHANGE_PERCENTAGE":-0.4,"VALUE_LAST_UPDATE_TS":1748779260}
		}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, []string{"btc", "eth", "sol"})
	samples, err := c.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}

	if gotPath != "/latest/tick" {
		t.Errorf("path = %q, want /latest/tick", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if gotInstruments != "BTC-USD,ETH-USD,SOL-USD" {
		t.Errorf("instruments param = %q", gotInstruments)
	}

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples (sol missing upstream), got %d", len(samples))
	}
	btc := samples[0]
	if btc.Symbol != "BTC" || btc.Price != 65000.5 || btc.Change24h != 2.1 {
		t.Errorf("unexpected first sample: %+v", btc)
	}
	if want := time.Unix(1748779200, 0).UTC(); !btc.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", btc.Timestamp, want)
	}
	if samples[1].Symbol != "ETH" {
		t.Errorf("second sample symbol = %q, want ETH", samples[1].Symbol)
	}
}

func TestFetchHistory(t *testing.T) {
	var gotPath, gotInstrument, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInstrument = r.URL.Query().Get("instrument")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Data":[
			{"INSTRUMENT":"BTC-USD","TIMESTAMP":1748779200,"OPEN":1,"HIGH":2,"LOW":0.5,"CLOSE":1.5,"VOLUME":10},
			{"INSTRUMENT":"DOGE-USD","TIMESTAMP":1748782800,"OPEN":9,"HIGH":9,"LOW":9,"CLOSE":9,"VOLUME":9},
			{"TIMESTAMP":1748786400,"OPEN":1.5,"HIGH":3,"LOW":1,"CLOSE":2.5,"VOLUME":12}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, []string{"btc"})
	points, err := c.FetchHistory(context.Background(), "btc", repository.TFHour)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}

	if gotPath != "/historical/hours" {
		t.Errorf("path = %q, want /historical/hours", gotPath)
	}
	if gotInstrument != "BTC-USD" {
		t.Errorf("instrument param = %q, want BTC-USD", gotInstrument)
	}
	if gotLimit != "3" {
		t.Errorf("limit param = %q, want 3", gotLimit)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 points after dropping the foreign instrument, got %d", len(points))
	}
	first := points[0]
	if first.Symbol != "BTC" {
		t.Errorf("symbol = %q, want BTC", first.Symbol)
	}
	if want := time.Unix(1748779200, 0).UTC(); !first.Bucket.Equal(want) {
		t.Errorf("bucket = %v, want %v", first.Bucket, want)
	}
	if first.Open != 1 || first.High != 2 || first.Low != 0.5 || first.Close != 1.5 || first.Volume != 10 {
		t.Errorf("unexpected ohlcv row: %+v", first)
	}
	// Rows without an instrument tag (filled gaps) stay in.
	if want := time.Unix(1748786400, 0).UTC(); !points[1].Bucket.Equal(want) {
		t.Errorf("second bucket = %v, want %v", points[1].Bucket, want)
	}
}

func TestFetchHistoryUnsupportedTimeframe(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", []string{"btc"})
	if _, err := c.FetchHistory(context.Background(), "btc", repository.Timeframe("week")); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}

func TestFetchHistoryUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, []string{"btc"})
	_, err := c.FetchHistory(context.Background(), "btc", repository.TFHour)
	if err == nil {
		t.Fatal("expected error on non-2xx response")
	}
	var statusErr *xhttp.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", statusErr.Status, http.StatusTooManyRequests)
	}
}

func TestFetchHistoricalPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/historical/days" {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Data":[{"INSTRUMENT":"BTC-USD","TIMESTAMP":1748779200,"OPEN":1,"HIGH":2,"LOW":1,"CLOSE":2,"VOLUME":5}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, []string{"btc"})
	out, err := c.FetchHistorical(context.Background())
	if err != nil {
		t.Fatalf("FetchHistorical: %v", err)
	}
	if len(out[repository.TFMinute]) != 1 || len(out[repository.TFHour]) != 1 {
		t.Errorf("expected minute and hour pulls to survive, got %v", out)
	}
	if _, ok := out[repository.TFDay]; ok {
		t.Error("failed day pull should not appear in the result")
	}
}

func TestFetchHistoricalAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, []string{"btc"})
	if _, err := c.FetchHistorical(context.Background()); err == nil {
		t.Fatal("expected error when every pull fails")
	}
}
