package models

// Requests for the market HTTP endpoints. Defined in domain for consistency and reuse.

type ChartRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"hour" validate:"oneof=minute hour day"`
	Limit     int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=2000"`
}

type SymbolPricesRequest struct {
	Symbols string `query:"symbols" json:"symbols" validate:"required"`
}

type ClearCacheRequest struct {
	Scope  string `json:"scope" query:"scope" default:"all" validate:"oneof=all latest charts quality"`
	Symbol string `json:"symbol,omitempty" query:"symbol"`
}

type BackfillRequest struct {
	Symbol    string `json:"symbol" validate:"required"`
	Timeframe string `json:"timeframe" default:"hour" validate:"oneof=minute hour day"`
}
