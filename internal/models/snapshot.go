package models

import "time"

// Timeframe names the four cached candle series.
type Timeframe string

const (
	TimeframeFine   Timeframe = "fine"
	TimeframeShort  Timeframe = "short"
	TimeframeMedium Timeframe = "medium"
	TimeframeLong   Timeframe = "long"
)

// Timeframes lists the cached candle series in ascending interval order.
var Timeframes = []Timeframe{TimeframeFine, TimeframeShort, TimeframeMedium, TimeframeLong}

// Ticker holds the latest per-field ticker state for a symbol. Every field is
// last-writer-wins; zero means the field has never been observed.
type Ticker struct {
	LastPrice     float64   `json:"last_price,omitempty"`
	Bid1Price     float64   `json:"bid1_price,omitempty"`
	Ask1Price     float64   `json:"ask1_price,omitempty"`
	MarkPrice     float64   `json:"mark_price,omitempty"`
	IndexPrice    float64   `json:"index_price,omitempty"`
	Price24hPcnt  float64   `json:"price_24h_pcnt,omitempty"`
	HighPrice24h  float64   `json:"high_price_24h,omitempty"`
	LowPrice24h   float64   `json:"low_price_24h,omitempty"`
	Volume24h     float64   `json:"volume_24h,omitempty"`
	Turnover24h   float64   `json:"turnover_24h,omitempty"`
	FundingRate   float64   `json:"funding_rate,omitempty"`
	OpenInterest  float64   `json:"open_interest,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PriceLevel is a single price level in the order book.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook keeps bids strictly descending and asks strictly ascending by
// price with no duplicate levels.
type OrderBook struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	UpdateID  int64        `json:"update_id"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Trade is one executed trade as reported by the exchange.
type Trade struct {
	ID    string    `json:"id"`
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	Side  string    `json:"side"`
	Time  time.Time `json:"time"`
}

// Candle is one OHLCV bar keyed by its start timestamp (epoch ms).
type Candle struct {
	Start  int64   `json:"start"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Liquidation is one forced-liquidation event.
type Liquidation struct {
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	Side  string    `json:"side"`
	Time  time.Time `json:"time"`
}

// OpenInterestPoint is one (timestamp, value) sample of open interest, kept as
// a history for trend derivation downstream.
type OpenInterestPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// FundingPoint is one historical funding-rate settlement.
type FundingPoint struct {
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskLimit is one tier of the symbol's risk-limit ladder.
type RiskLimit struct {
	ID                int64   `json:"id"`
	RiskLimitValue    float64 `json:"risk_limit_value"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
	InitialMargin     float64 `json:"initial_margin"`
	MaxLeverage       float64 `json:"max_leverage"`
}

// Snapshot is the current best-known market-data state of one symbol.
type Snapshot struct {
	Symbol       string                 `json:"symbol"`
	Ticker       Ticker                 `json:"ticker"`
	OrderBook    OrderBook              `json:"orderbook"`
	Trades       []Trade                `json:"trades"`
	Candles      map[Timeframe][]Candle `json:"candles"`
	Liquidations []Liquidation          `json:"liquidations"`
	OpenInterest []OpenInterestPoint    `json:"open_interest"`
	Funding      []FundingPoint         `json:"funding"`
	RiskLimits   []RiskLimit            `json:"risk_limits"`
	CreatedAt    time.Time              `json:"created_at"`
}
