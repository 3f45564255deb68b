package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/ratelimit"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/logger"
)

// Config describes the upstream index API.
type Config struct {
	BaseURL      string
	APIKey       string
	Quote        string
	Symbols      []string
	Timeout      time.Duration
	HistoryLimit int
	RateCapacity float64
	RateRefill   float64
}

// Client pulls ticks and OHLCV history from the upstream index API.
// All requests share one token bucket so bursts of jobs stay inside the
// provider's rate limits.
type Client struct {
	cfg     Config
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	logger  *logger.Logger
}

const limiterKey = "upstream"

func NewClient(cfg Config, limiter *ratelimit.Limiter, log *logger.Logger) *Client {
	if cfg.Quote == "" {
		cfg.Quote = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.RateCapacity <= 0 {
		cfg.RateCapacity = 30
	}
	if cfg.RateRefill <= 0 {
		cfg.RateRefill = 0.5
	}
	return &Client{
		cfg:     cfg,
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		limiter: limiter,
		logger:  log,
	}
}

// tick is one instrument entry of the latest-tick response.
type tick struct {
	Value     float64 `json:"VALUE"`
	ChangePct float64 `json:"CURRENT_DAY_CHANGE_PERCENTAGE"`
	UpdatedTS int64   `json:"VALUE_LAST_UPDATE_TS"`
}

type tickResponse struct {
	Data map[string]tick `json:"Data"`
}

// candle is one OHLCV row of the historical responses.
type candle struct {
	Instrument string  `json:"INSTRUMENT"`
	Timestamp  int64   `json:"TIMESTAMP"`
	Open       float64 `json:"OPEN"`
	High       float64 `json:"HIGH"`
	Low        float64 `json:"LOW"`
	Close      float64 `json:"CLOSE"`
	Volume     float64 `json:"VOLUME"`
}

type historicalResponse struct {
	Data []candle `json:"Data"`
}

func (c *Client) instrument(symbol string) string {
	return strings.ToUpper(symbol) + "-" + strings.ToUpper(c.cfg.Quote)
}

func (c *Client) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if c.cfg.APIKey != "" {
		h["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	return h
}

func endpointFor(tf repository.Timeframe) (string, error) {
	switch tf {
	case repository.TFMinute:
		return "/historical/minutes", nil
	case repository.TFHour:
		return "/historical/hours", nil
	case repository.TFDay:
		return "/historical/days", nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q", tf)
	}
}

func (c *Client) fetchTicks(ctx context.Context) ([]models.Sample, error) {
	if err := c.limiter.Wait(ctx, limiterKey, c.cfg.RateCapacity, c.cfg.RateRefill); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	instruments := make([]string, len(c.cfg.Symbols))
	for i, s := range c.cfg.Symbols {
		instruments[i] = c.instrument(s)
	}

	var resp tickResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.cfg.BaseURL + "/latest/tick",
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"market":        {"cadli"},
			"instruments":   {strings.Join(instruments, ",")},
			"apply_mapping": {"true"},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch ticks: %w", err)
	}

	samples := make([]models.Sample, 0, len(c.cfg.Symbols))
	for _, symbol := range c.cfg.Symbols {
		entry, ok := resp.Data[c.instrument(symbol)]
		if !ok {
			c.logger.Warn("instrument missing from tick response",
				logger.String("symbol", symbol))
			continue
		}
		samples = append(samples, models.Sample{
			Symbol:    strings.ToUpper(symbol),
			Price:     entry.Value,
			Change24h: entry.ChangePct,
			Timestamp: time.Unix(entry.UpdatedTS, 0).UTC(),
		})
	}
	return samples, nil
}

// FetchSnapshot returns the current tick for every configured symbol.
func (c *Client) FetchSnapshot(ctx context.Context) ([]models.Sample, error) {
	return c.fetchTicks(ctx)
}

// FetchRealtime returns current ticks only, without any history pulls.
func (c *Client) FetchRealtime(ctx context.Context) ([]models.Sample, error) {
	return c.fetchTicks(ctx)
}

// FetchHistory pulls one symbol's OHLCV history for a single timeframe.
func (c *Client) FetchHistory(ctx context.Context, symbol string, tf repository.Timeframe) ([]models.HistoricalPoint, error) {
	endpoint, err := endpointFor(tf)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, limiterKey, c.cfg.RateCapacity, c.cfg.RateRefill); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var resp historicalResponse
	err = c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.cfg.BaseURL + endpoint,
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"market":          {"cadli"},
			"instrument":      {c.instrument(symbol)},
			"limit":           {strconv.Itoa(c.cfg.HistoryLimit)},
			"aggregate":       {"1"},
			"fill":            {"true"},
			"apply_mapping":   {"true"},
			"response_format": {"JSON"},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch %s history for %s: %w", tf, symbol, err)
	}

	points := make([]models.HistoricalPoint, 0, len(resp.Data))
	for _, row := range resp.Data {
		if row.Instrument != "" && row.Instrument != c.instrument(symbol) {
			continue
		}
		points = append(points, models.HistoricalPoint{
			Symbol: strings.ToUpper(symbol),
			Bucket: time.Unix(row.Timestamp, 0).UTC(),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return points, nil
}

// FetchHistorical pulls history for every configured symbol and timeframe.
// Individual pulls may fail without aborting the rest; the error is non-nil
// only when every pull failed.
func (c *Client) FetchHistorical(ctx context.Context) (map[repository.Timeframe][]models.HistoricalPoint, error) {
	timeframes := []repository.Timeframe{repository.TFMinute, repository.TFHour, repository.TFDay}
	out := make(map[repository.Timeframe][]models.HistoricalPoint, len(timeframes))

	var attempted, failed int
	var lastErr error
	for _, symbol := range c.cfg.Symbols {
		for _, tf := range timeframes {
			attempted++
			points, err := c.FetchHistory(ctx, symbol, tf)
			if err != nil {
				failed++
				lastErr = err
				c.logger.Warn("historical pull failed",
					logger.String("symbol", symbol),
					logger.String("timeframe", string(tf)),
					logger.Error(err))
				continue
			}
			out[tf] = append(out[tf], points...)
		}
	}
	if attempted > 0 && failed == attempted {
		return nil, fmt.Errorf("all historical pulls failed: %w", lastErr)
	}
	return out, nil
}
