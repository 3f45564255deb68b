package models

import "time"

// Sample is one observed price/volume reading for an instrument. Change24h
// carries the upstream-reported percent change when present, zero otherwise.
type Sample struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoricalPoint is one stored OHLCV bucket. The timeframe is carried by
// the table or map it came from, not the row.
type HistoricalPoint struct {
	Symbol string    `json:"symbol"`
	Bucket time.Time `json:"bucket"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceView is the read-model row served to clients and kept in cache.
type PriceView struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Volume    float64   `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ViewFromSample builds the read-model row for a freshly ingested sample.
func ViewFromSample(s Sample) PriceView {
	return PriceView{
		Symbol:    s.Symbol,
		Price:     s.Price,
		Change24h: s.Change24h,
		Volume:    s.Volume,
		UpdatedAt: s.Timestamp,
	}
}

// ChartPoint is a HistoricalPoint enriched with rolling volatility.
type ChartPoint struct {
	Bucket     time.Time `json:"bucket"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	Volatility float64   `json:"volatility"`
}

// CacheStats is the gateway counter snapshot exposed by the stats endpoint.
type CacheStats struct {
	Backend   string    `json:"backend"`
	Available bool      `json:"available"`
	Hits      uint64    `json:"hits"`
	Misses    uint64    `json:"misses"`
	Writes    uint64    `json:"writes"`
	HitRate   float64   `json:"hit_rate"`
	Keys      int64     `json:"keys"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Health statuses for SymbolHealth.Status.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// SymbolHealth describes sampling quality for one instrument.
type SymbolHealth struct {
	Symbol        string    `json:"symbol"`
	LastSample    time.Time `json:"last_sample"`
	Freshness     float64   `json:"freshness"`
	Gaps          int       `json:"gaps"`
	Volatility    float64   `json:"volatility"`
	VolumeAnomaly bool      `json:"volume_anomaly"`
	Status        string    `json:"status"`
}

// QualityReport is the per-symbol health rollup rebuilt by the analytics job.
type QualityReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Symbols     []SymbolHealth `json:"symbols"`
	Healthy     int            `json:"healthy"`
	Warning     int            `json:"warning"`
	Critical    int            `json:"critical"`
}

// Count tallies the status totals from the symbol rows.
func (r *QualityReport) Count() {
	r.Healthy, r.Warning, r.Critical = 0, 0, 0
	for _, s := range r.Symbols {
		switch s.Status {
		case HealthHealthy:
			r.Healthy++
		case HealthWarning:
			r.Warning++
		default:
			r.Critical++
		}
	}
}

// JobStatus is a scheduler registry snapshot row.
type JobStatus struct {
	Name       string    `json:"name"`
	Interval   string    `json:"interval"`
	NextDue    time.Time `json:"next_due"`
	LastRun    time.Time `json:"last_run"`
	LastStatus string    `json:"last_status"`
	Running    bool      `json:"running"`
}

// SystemStatus aggregates component health for the status endpoint.
type SystemStatus struct {
	Environment string      `json:"environment"`
	Store       string      `json:"store"`
	Stream      string      `json:"stream"`
	Cache       CacheStats  `json:"cache"`
	Jobs        []JobStatus `json:"jobs"`
	GeneratedAt time.Time   `json:"generated_at"`
}
