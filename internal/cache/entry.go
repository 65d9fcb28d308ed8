package cache

import (
	"sort"
	"sync"
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
)

// Entry owns the snapshot of one symbol. All mutation funnels through the
// Apply methods below, from the symbol's stream consumer and from the
// scheduler's pull-completion path; a single mutex per entry keeps the two
// paths from interleaving mid-merge.
type Entry struct {
	mu    sync.Mutex
	cfg   config.CacheConfig
	snap  models.Snapshot
	fresh map[Component]Freshness

	streamUpdates int64
	pullUpdates   int64
}

func newEntry(symbol string, cfg config.CacheConfig) *Entry {
	return &Entry{
		cfg: cfg,
		snap: models.Snapshot{
			Symbol:    symbol,
			Candles:   make(map[models.Timeframe][]models.Candle),
			CreatedAt: time.Now(),
		},
		fresh: make(map[Component]Freshness),
	}
}

func (e *Entry) touchLocked(c Component, src Source, at time.Time) {
	e.fresh[c] = Freshness{UpdatedAt: at, Source: src}
	if src == SourceStream {
		e.streamUpdates++
	} else {
		e.pullUpdates++
	}
}

// ApplyTicker merges a ticker snapshot or delta. Only fields present in the
// payload overwrite the cached value; unparseable fields are skipped, not
// fatal.
func (e *Entry) ApplyTicker(p models.TickerPayload, src Source, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := &e.snap.Ticker
	setField := func(dst *float64, raw *string) {
		if raw == nil {
			return
		}
		if v, ok := models.ParseFloat(*raw); ok {
			*dst = v
		}
	}
	setField(&t.LastPrice, p.LastPrice)
	setField(&t.Bid1Price, p.Bid1Price)
	setField(&t.Ask1Price, p.Ask1Price)
	setField(&t.MarkPrice, p.MarkPrice)
	setField(&t.IndexPrice, p.IndexPrice)
	setField(&t.Price24hPcnt, p.Price24hPcnt)
	setField(&t.HighPrice24h, p.HighPrice24h)
	setField(&t.LowPrice24h, p.LowPrice24h)
	setField(&t.Volume24h, p.Volume24h)
	setField(&t.Turnover24h, p.Turnover24h)
	setField(&t.FundingRate, p.FundingRate)
	setField(&t.OpenInterest, p.OpenInterest)
	t.UpdatedAt = at

	e.touchLocked(ComponentTicker, src, at)
}

// ApplyOrderbookSnapshot replaces both sides wholesale.
func (e *Entry) ApplyOrderbookSnapshot(bids, asks [][]string, updateID int64, src Source, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snap.OrderBook.Bids = buildSide(bids, true)
	e.snap.OrderBook.Asks = buildSide(asks, false)
	e.snap.OrderBook.UpdateID = updateID
	e.snap.OrderBook.UpdatedAt = at

	e.touchLocked(ComponentOrderbook, src, at)
}

// ApplyOrderbookDelta merges level changes additively: size zero removes a
// level, anything else upserts it. Sides are re-sorted after the merge.
func (e *Entry) ApplyOrderbookDelta(bids, asks [][]string, updateID int64, src Source, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(bids) > 0 {
		e.snap.OrderBook.Bids = mergeSide(e.snap.OrderBook.Bids, bids, true)
	}
	if len(asks) > 0 {
		e.snap.OrderBook.Asks = mergeSide(e.snap.OrderBook.Asks, asks, false)
	}
	e.snap.OrderBook.UpdateID = updateID
	e.snap.OrderBook.UpdatedAt = at

	e.touchLocked(ComponentOrderbook, src, at)
}

// ApplyTrades prepends new trades, de-duplicates by exchange id and caps the
// ring length.
func (e *Entry) ApplyTrades(trades []models.Trade, src Source, at time.Time) {
	if len(trades) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(e.snap.Trades)+len(trades))
	merged := make([]models.Trade, 0, len(e.snap.Trades)+len(trades))
	for _, t := range trades {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range e.snap.Trades {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		merged = append(merged, t)
	}
	// Newest first.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Time.After(merged[j].Time) })
	if len(merged) > e.cfg.TradeHistory {
		merged = merged[:e.cfg.TradeHistory]
	}
	e.snap.Trades = merged

	e.touchLocked(ComponentTrades, src, at)
}

// ApplyKlines upserts bars by start timestamp into one timeframe's series,
// keeping the series sorted ascending and capped.
func (e *Entry) ApplyKlines(tf models.Timeframe, bars []models.Candle, src Source, at time.Time) {
	if len(bars) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	byStart := make(map[int64]models.Candle, len(e.snap.Candles[tf])+len(bars))
	for _, c := range e.snap.Candles[tf] {
		byStart[c.Start] = c
	}
	for _, c := range bars {
		byStart[c.Start] = c
	}
	series := make([]models.Candle, 0, len(byStart))
	for _, c := range byStart {
		series = append(series, c)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Start < series[j].Start })
	if len(series) > e.cfg.KlineLimit {
		series = series[len(series)-e.cfg.KlineLimit:]
	}
	e.snap.Candles[tf] = series

	e.touchLocked(KlineComponent(tf), src, at)
}

// ApplyLiquidations appends events and prunes everything older than the
// configured time window.
func (e *Entry) ApplyLiquidations(liqs []models.Liquidation, src Source, at time.Time) {
	if len(liqs) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snap.Liquidations = append(e.snap.Liquidations, liqs...)
	cutoff := at.Add(-time.Duration(e.cfg.LiquidationWindowMs) * time.Millisecond)
	kept := e.snap.Liquidations[:0]
	for _, l := range e.snap.Liquidations {
		if l.Time.After(cutoff) {
			kept = append(kept, l)
		}
	}
	e.snap.Liquidations = kept
}

// ApplyOpenInterest merges samples into the open-interest history, de-duplicated
// by timestamp and capped to the configured length.
func (e *Entry) ApplyOpenInterest(points []models.OpenInterestPoint, src Source, at time.Time) {
	if len(points) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	byTs := make(map[int64]models.OpenInterestPoint, len(e.snap.OpenInterest)+len(points))
	for _, p := range e.snap.OpenInterest {
		byTs[p.Timestamp.UnixMilli()] = p
	}
	for _, p := range points {
		byTs[p.Timestamp.UnixMilli()] = p
	}
	history := make([]models.OpenInterestPoint, 0, len(byTs))
	for _, p := range byTs {
		history = append(history, p)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })
	if len(history) > e.cfg.OpenInterestHistory {
		history = history[len(history)-e.cfg.OpenInterestHistory:]
	}
	e.snap.OpenInterest = history

	e.touchLocked(ComponentOpenInterest, src, at)
}

// ApplyFunding replaces the funding history with the latest pull result.
func (e *Entry) ApplyFunding(points []models.FundingPoint, src Source, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	e.snap.Funding = points
	e.touchLocked(ComponentFunding, src, at)
}

// ApplyRiskLimits replaces the risk-limit ladder.
func (e *Entry) ApplyRiskLimits(rows []models.RiskLimit, src Source, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snap.RiskLimits = rows
	e.touchLocked(ComponentRiskLimit, src, at)
}

// Snapshot returns a deep copy safe for concurrent readers.
func (e *Entry) Snapshot() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.snap
	out.Ticker = e.snap.Ticker
	out.OrderBook.Bids = append([]models.PriceLevel(nil), e.snap.OrderBook.Bids...)
	out.OrderBook.Asks = append([]models.PriceLevel(nil), e.snap.OrderBook.Asks...)
	out.Trades = append([]models.Trade(nil), e.snap.Trades...)
	out.Liquidations = append([]models.Liquidation(nil), e.snap.Liquidations...)
	out.OpenInterest = append([]models.OpenInterestPoint(nil), e.snap.OpenInterest...)
	out.Funding = append([]models.FundingPoint(nil), e.snap.Funding...)
	out.RiskLimits = append([]models.RiskLimit(nil), e.snap.RiskLimits...)
	out.Candles = make(map[models.Timeframe][]models.Candle, len(e.snap.Candles))
	for tf, series := range e.snap.Candles {
		out.Candles[tf] = append([]models.Candle(nil), series...)
	}
	return out
}

// Freshness returns a copy of the component freshness records.
func (e *Entry) Freshness() map[Component]Freshness {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[Component]Freshness, len(e.fresh))
	for c, f := range e.fresh {
		out[c] = f
	}
	return out
}

// Counters reports how many updates each path has applied.
func (e *Entry) Counters() (stream, pull int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamUpdates, e.pullUpdates
}

// buildSide parses raw [price, size] pairs into a sorted, de-duplicated side.
// Unparseable pairs are skipped.
func buildSide(raw [][]string, descending bool) []models.PriceLevel {
	byPrice := make(map[float64]float64, len(raw))
	for _, pair := range raw {
		lvl, ok := models.ParseLevel(pair)
		if !ok {
			continue
		}
		if lvl.Size == 0 {
			delete(byPrice, lvl.Price)
			continue
		}
		byPrice[lvl.Price] = lvl.Size
	}
	return sortedSide(byPrice, descending)
}

// mergeSide applies delta pairs onto an existing side: zero size deletes the
// level, anything else upserts it.
func mergeSide(existing []models.PriceLevel, raw [][]string, descending bool) []models.PriceLevel {
	byPrice := make(map[float64]float64, len(existing)+len(raw))
	for _, lvl := range existing {
		byPrice[lvl.Price] = lvl.Size
	}
	for _, pair := range raw {
		lvl, ok := models.ParseLevel(pair)
		if !ok {
			continue
		}
		if lvl.Size == 0 {
			delete(byPrice, lvl.Price)
			continue
		}
		byPrice[lvl.Price] = lvl.Size
	}
	return sortedSide(byPrice, descending)
}

func sortedSide(byPrice map[float64]float64, descending bool) []models.PriceLevel {
	side := make([]models.PriceLevel, 0, len(byPrice))
	for price, size := range byPrice {
		side = append(side, models.PriceLevel{Price: price, Size: size})
	}
	sort.Slice(side, func(i, j int) bool {
		if descending {
			return side[i].Price > side[j].Price
		}
		return side[i].Price < side[j].Price
	})
	return side
}
