package cache

import (
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
)

// Component names one independently-refreshed slice of a symbol snapshot.
type Component string

const (
	ComponentTicker       Component = "ticker"
	ComponentOrderbook    Component = "orderbook"
	ComponentTrades       Component = "trades"
	ComponentKlineFine    Component = "kline_fine"
	ComponentKlineShort   Component = "kline_short"
	ComponentKlineMedium  Component = "kline_medium"
	ComponentKlineLong    Component = "kline_long"
	ComponentFunding      Component = "funding"
	ComponentOpenInterest Component = "open_interest"
	ComponentRiskLimit    Component = "risk_limit"
)

// Components lists every refreshable component in scheduler order.
var Components = []Component{
	ComponentTicker,
	ComponentOrderbook,
	ComponentTrades,
	ComponentKlineFine,
	ComponentKlineShort,
	ComponentKlineMedium,
	ComponentKlineLong,
	ComponentFunding,
	ComponentOpenInterest,
	ComponentRiskLimit,
}

// KlineComponent maps a cached timeframe to its freshness component.
func KlineComponent(tf models.Timeframe) Component {
	switch tf {
	case models.TimeframeFine:
		return ComponentKlineFine
	case models.TimeframeShort:
		return ComponentKlineShort
	case models.TimeframeMedium:
		return ComponentKlineMedium
	default:
		return ComponentKlineLong
	}
}

// componentTimeframe is the inverse of KlineComponent; ok is false for
// non-kline components.
func componentTimeframe(c Component) (models.Timeframe, bool) {
	switch c {
	case ComponentKlineFine:
		return models.TimeframeFine, true
	case ComponentKlineShort:
		return models.TimeframeShort, true
	case ComponentKlineMedium:
		return models.TimeframeMedium, true
	case ComponentKlineLong:
		return models.TimeframeLong, true
	default:
		return "", false
	}
}

// budget returns the staleness budget configured for a component.
func budget(b config.BudgetsConfig, c Component) time.Duration {
	var ms int64
	switch c {
	case ComponentTicker:
		ms = b.Ticker
	case ComponentOrderbook:
		ms = b.Orderbook
	case ComponentTrades:
		ms = b.Trades
	case ComponentKlineFine:
		ms = b.KlineFine
	case ComponentKlineShort:
		ms = b.KlineShort
	case ComponentKlineMedium:
		ms = b.KlineMedium
	case ComponentKlineLong:
		ms = b.KlineLong
	case ComponentFunding:
		ms = b.Funding
	case ComponentOpenInterest:
		ms = b.OpenInterest
	case ComponentRiskLimit:
		ms = b.RiskLimit
	}
	return time.Duration(ms) * time.Millisecond
}

// Source marks which path produced a component update.
type Source string

const (
	SourceStream Source = "stream"
	SourcePull   Source = "pull"
)

// Freshness records the last successful update of one component.
type Freshness struct {
	UpdatedAt time.Time `json:"updated_at"`
	Source    Source    `json:"source"`
}
