package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	pkgch "CoinPulse/pkg/clickhouse"
	applogger "CoinPulse/pkg/logger"
	"CoinPulse/pkg/util"
)

// MarketStore implements SampleStore backed by ClickHouse. Raw samples go
// to one append-only table; OHLCV history lives in one ReplacingMergeTree
// per timeframe so re-pulled buckets dedupe on merge.
type MarketStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewMarketStore(ch *pkgch.Client, database string, l *applogger.Logger) domrepo.SampleStore {
	return &MarketStore{db: ch.DB(), database: database, l: l}
}

// Init ensures the database and tables exist (idempotent).
func (s *MarketStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.price_samples (
			symbol String,
			ts DateTime,
			price Float64,
			change_24h Float64,
			volume Float64
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, s.database),
	}
	for _, tf := range []domrepo.Timeframe{domrepo.TFMinute, domrepo.TFHour, domrepo.TFDay} {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol String,
			bucket DateTime,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, bucket)`, s.table(tf)))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *MarketStore) InsertSample(ctx context.Context, sample models.Sample) error {
	q := fmt.Sprintf("INSERT INTO %s.price_samples (symbol, ts, price, change_24h, volume) VALUES (?, ?, ?, ?, ?)", s.database)
	_, err := s.db.ExecContext(ctx, q,
		sample.Symbol,
		sample.Timestamp.UTC(),
		sample.Price,
		sample.Change24h,
		sample.Volume,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// InsertHistorical aligns the bucket onto its timeframe boundary before
// writing, so re-pulled windows collapse onto the same ReplacingMergeTree
// rows.
func (s *MarketStore) InsertHistorical(ctx context.Context, tf domrepo.Timeframe, p models.HistoricalPoint) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, bucket, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table(tf))
	_, err := s.db.ExecContext(ctx, q,
		p.Symbol,
		util.AlignBucket(p.Bucket, string(tf)).UTC(),
		p.Open,
		p.High,
		p.Low,
		p.Close,
		p.Volume,
	)
	if err != nil {
		return fmt.Errorf("insert %s bucket: %w", tf, err)
	}
	return nil
}

// QueryLatest returns the most recent sample per symbol in one pass.
func (s *MarketStore) QueryLatest(ctx context.Context) ([]models.Sample, error) {
	q := fmt.Sprintf(`
        SELECT symbol,
               max(ts) AS ts,
               argMax(price, ts) AS price,
               argMax(change_24h, ts) AS change_24h,
               argMax(volume, ts) AS volume
        FROM %s.price_samples
        GROUP BY symbol
        ORDER BY symbol ASC
    `, s.database)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse query_latest error", applogger.Error(err))
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var sample models.Sample
		var ts time.Time
		if err := rows.Scan(&sample.Symbol, &ts, &sample.Price, &sample.Change24h, &sample.Volume); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Timestamp = ts.UTC()
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// QueryHistory returns up to limit buckets ascending, newest window first.
func (s *MarketStore) QueryHistory(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.HistoricalPoint, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, bucket, open, high, low, close, volume
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, s.table(tf))
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		s.l.Error("clickhouse query_history error",
			applogger.String("symbol", symbol),
			applogger.String("timeframe", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.HistoricalPoint, 0, limit)
	for rows.Next() {
		var p models.HistoricalPoint
		var bucket time.Time
		if err := rows.Scan(&p.Symbol, &bucket, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		p.Bucket = bucket.UTC()
		tmp = append(tmp, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse query_history ok",
		applogger.String("symbol", symbol),
		applogger.String("timeframe", string(tf)),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("took", time.Since(start)),
	)
	return tmp, nil
}

// QueryPointBefore returns the newest hour bucket at or before cutoff,
// (nil, nil) when the symbol has no history that old.
func (s *MarketStore) QueryPointBefore(ctx context.Context, symbol string, cutoff time.Time) (*models.HistoricalPoint, error) {
	q := fmt.Sprintf(`
        SELECT symbol, bucket, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND bucket <= ?
        ORDER BY bucket DESC
        LIMIT 1
    `, s.table(domrepo.TFHour))
	var p models.HistoricalPoint
	var bucket time.Time
	err := s.db.QueryRowContext(ctx, q, symbol, cutoff.UTC()).
		Scan(&p.Symbol, &bucket, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query point before: %w", err)
	}
	p.Bucket = bucket.UTC()
	return &p, nil
}

func (s *MarketStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MarketStore) Close() error {
	return nil // pool managed by pkg client
}

func (s *MarketStore) table(tf domrepo.Timeframe) string {
	switch tf {
	case domrepo.TFHour:
		return s.database + ".candles_hour"
	case domrepo.TFDay:
		return s.database + ".candles_day"
	default:
		return s.database + ".candles_minute"
	}
}
