package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Config describes the push source connection.
type Config struct {
	URL            string
	APIKey         string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client is a MarketStream over a trade-feed WebSocket. The collector drives
// Connect, Subscribe, Read and Reconnect from one goroutine; IsConnected may
// be read from anywhere.
type Client struct {
	cfg       Config
	log       *logger.Logger
	connected atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
}

// New builds a MarketStream for the configured symbols.
func New(cfg Config, log *logger.Logger) drepo.MarketStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Client{cfg: cfg, log: log}
}

// Connect dials the feed endpoint.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	c.log.Info("stream connected", logger.String("url", c.cfg.URL))
	return nil
}

func (c *Client) dialURL() string {
	if c.cfg.APIKey == "" {
		return c.cfg.URL
	}
	sep := "?"
	if strings.Contains(c.cfg.URL, "?") {
		sep = "&"
	}
	return c.cfg.URL + sep + "token=" + url.QueryEscape(c.cfg.APIKey)
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

type subscribeFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe registers every configured symbol on the feed.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil || !c.connected.Load() {
		return fmt.Errorf("stream not connected")
	}
	for _, s := range c.cfg.Symbols {
		sub := subscribeFrame{Type: "subscribe", Symbol: strings.ToUpper(s)}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Debug("stream subscribed", logger.String("symbol", sub.Symbol))
	}
	return nil
}

// feedTrade is one trade in a feed frame; timestamps are unix milliseconds.
type feedTrade struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
	Volume float64 `json:"v"`
	TsMS   int64   `json:"t"`
}

func (t feedTrade) toSample() models.Sample {
	return models.Sample{
		Symbol:    strings.ToUpper(t.Symbol),
		Price:     t.Price,
		Volume:    t.Volume,
		Timestamp: time.UnixMilli(t.TsMS).UTC(),
	}
}

type feedFrame struct {
	Type string      `json:"type"`
	Data []feedTrade `json:"data"`
}

// Read drains trade frames into a sample channel until ctx ends or the
// connection drops. Slow consumers lose samples rather than stall the feed.
func (c *Client) Read(ctx context.Context) (<-chan models.Sample, <-chan error) {
	samples := make(chan models.Sample, 1024)
	errs := make(chan error, 1)

	conn := c.current()
	if conn == nil {
		errs <- fmt.Errorf("stream conn nil")
		close(samples)
		close(errs)
		return samples, errs
	}

	go c.keepAlive(ctx, conn)
	go func() {
		defer close(samples)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			_, raw, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}
			c.forward(raw, samples)
		}
	}()

	return samples, errs
}

// forward decodes a frame and pushes its trades, skipping anything that is
// not a trade payload.
func (c *Client) forward(raw []byte, samples chan<- models.Sample) {
	var frame feedFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != "trade" {
		return
	}
	for _, t := range frame.Data {
		select {
		case samples <- t.toSample():
		default:
		}
	}
}

// keepAlive pings the captured connection so intermediaries keep it open.
// WriteControl is safe to call alongside the read loop.
func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			_ = conn.WriteControl(websocket.PingMessage, nil, deadline)
		}
	}
}

// Reconnect tears the connection down, waits out the delay, and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close drops the connection.
func (c *Client) Close() error {
	c.connected.Store(false)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsConnected reports whether the last dial is still believed healthy.
func (c *Client) IsConnected() bool { return c.connected.Load() }
