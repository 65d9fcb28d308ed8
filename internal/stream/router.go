package stream

import (
	"encoding/json"
	"time"

	"marketfeed/config"
	"marketfeed/internal/cache"
	"marketfeed/internal/metrics"
	"marketfeed/internal/models"
	"marketfeed/internal/reorder"
	"marketfeed/logger"
)

// bookUpdate is one order-book frame queued through the reorder buffer.
type bookUpdate struct {
	snapshot bool
	payload  models.OrderbookPayload
}

// Router decodes stream frames and applies them to the cache. Order-book and
// trade frames pass through per-symbol reorder buffers first so slightly
// late arrivals are re-sequenced instead of applied out of order.
type Router struct {
	cfg     *config.Config
	cache   *cache.Cache
	books   *reorder.Buffer[bookUpdate]
	trades  *reorder.Buffer[[]models.Trade]
	symbols map[string]struct{}
	log     *logger.Log
}

func NewRouter(cfg *config.Config, c *cache.Cache) *Router {
	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}
	window := int64(cfg.Reorder.WindowMs)
	return &Router{
		cfg:     cfg,
		cache:   c,
		books:   reorder.NewBuffer[bookUpdate](window, cfg.Reorder.Capacity),
		trades:  reorder.NewBuffer[[]models.Trade](window, cfg.Reorder.Capacity),
		symbols: symbols,
		log:     logger.GetLogger(),
	}
}

// Dispatch routes one frame to its channel handler. Malformed frames are
// counted and skipped; they never take the consumer down.
func (r *Router) Dispatch(frame models.StreamFrame) {
	topic, ok := parseTopic(frame.Topic)
	if !ok {
		metrics.IncrementMalformedFrame("bad_topic")
		r.log.WithComponent("stream_router").WithFields(logger.Fields{
			"topic": frame.Topic,
		}).Debug("unparseable topic, skipping frame")
		return
	}
	if _, known := r.symbols[topic.Symbol]; !known {
		metrics.IncrementMalformedFrame("unknown_symbol")
		return
	}

	switch topic.Channel {
	case channelTicker:
		r.handleTicker(topic.Symbol, frame)
	case channelOrderbook:
		r.handleOrderbook(topic.Symbol, frame)
	case channelTrade:
		r.handleTrades(topic.Symbol, frame)
	case channelKline:
		r.handleKline(topic.Symbol, topic.Param, frame)
	case channelLiquidation:
		r.handleLiquidation(topic.Symbol, frame)
	default:
		metrics.IncrementMalformedFrame("unknown_channel")
	}
}

func (r *Router) handleTicker(symbol string, frame models.StreamFrame) {
	var payload models.TickerPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		metrics.IncrementMalformedFrame("bad_ticker")
		return
	}
	r.cache.Entry(symbol).ApplyTicker(payload, cache.SourceStream, time.Now())
	metrics.IncrementStreamUpdate(symbol, channelTicker)
}

func (r *Router) handleOrderbook(symbol string, frame models.StreamFrame) {
	var payload models.OrderbookPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		metrics.IncrementMalformedFrame("bad_orderbook")
		return
	}

	update := bookUpdate{snapshot: frame.Type == "snapshot", payload: payload}
	_, released := r.books.Submit(symbol, frame.Ts, update)

	entry := r.cache.Entry(symbol)
	now := time.Now()
	for _, ev := range released {
		p := ev.Payload.payload
		if ev.Payload.snapshot {
			entry.ApplyOrderbookSnapshot(p.Bids, p.Asks, p.UpdateID, cache.SourceStream, now)
		} else {
			entry.ApplyOrderbookDelta(p.Bids, p.Asks, p.UpdateID, cache.SourceStream, now)
		}
		metrics.IncrementStreamUpdate(symbol, channelOrderbook)
	}
}

func (r *Router) handleTrades(symbol string, frame models.StreamFrame) {
	var entries []models.TradeEntry
	if err := json.Unmarshal(frame.Data, &entries); err != nil {
		metrics.IncrementMalformedFrame("bad_trade")
		return
	}

	trades := make([]models.Trade, 0, len(entries))
	for _, e := range entries {
		price, okP := models.ParseFloat(e.Price)
		size, okS := models.ParseFloat(e.Size)
		if e.ID == "" || !okP || !okS {
			metrics.IncrementMalformedFrame("bad_trade_row")
			continue
		}
		trades = append(trades, models.Trade{
			ID:    e.ID,
			Price: price,
			Size:  size,
			Side:  e.Side,
			Time:  time.UnixMilli(e.Time),
		})
	}
	if len(trades) == 0 {
		return
	}

	_, released := r.trades.Submit(symbol, frame.Ts, trades)

	entry := r.cache.Entry(symbol)
	now := time.Now()
	for _, ev := range released {
		entry.ApplyTrades(ev.Payload, cache.SourceStream, now)
		metrics.IncrementStreamUpdate(symbol, channelTrade)
	}
}

func (r *Router) handleKline(symbol, interval string, frame models.StreamFrame) {
	tf, ok := r.timeframe(interval)
	if !ok {
		metrics.IncrementMalformedFrame("unknown_interval")
		return
	}

	var entries []models.KlineEntry
	if err := json.Unmarshal(frame.Data, &entries); err != nil {
		metrics.IncrementMalformedFrame("bad_kline")
		return
	}

	bars := make([]models.Candle, 0, len(entries))
	for _, e := range entries {
		open, okO := models.ParseFloat(e.Open)
		high, okH := models.ParseFloat(e.High)
		low, okL := models.ParseFloat(e.Low)
		cls, okC := models.ParseFloat(e.Close)
		volume, okV := models.ParseFloat(e.Volume)
		if e.Start == 0 || !okO || !okH || !okL || !okC || !okV {
			metrics.IncrementMalformedFrame("bad_kline_row")
			continue
		}
		bars = append(bars, models.Candle{
			Start:  e.Start,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
			Volume: volume,
		})
	}
	if len(bars) == 0 {
		return
	}

	r.cache.Entry(symbol).ApplyKlines(tf, bars, cache.SourceStream, time.Now())
	metrics.IncrementStreamUpdate(symbol, channelKline)
}

func (r *Router) handleLiquidation(symbol string, frame models.StreamFrame) {
	var entries []models.LiquidationEntry
	if err := json.Unmarshal(frame.Data, &entries); err != nil {
		metrics.IncrementMalformedFrame("bad_liquidation")
		return
	}

	liqs := make([]models.Liquidation, 0, len(entries))
	for _, e := range entries {
		price, okP := models.ParseFloat(e.Price)
		size, okS := models.ParseFloat(e.Size)
		if !okP || !okS {
			metrics.IncrementMalformedFrame("bad_liquidation_row")
			continue
		}
		liqs = append(liqs, models.Liquidation{
			Price: price,
			Size:  size,
			Side:  e.Side,
			Time:  time.UnixMilli(e.UpdatedTime),
		})
	}
	if len(liqs) == 0 {
		return
	}

	r.cache.Entry(symbol).ApplyLiquidations(liqs, cache.SourceStream, time.Now())
	metrics.IncrementStreamUpdate(symbol, channelLiquidation)
}

func (r *Router) timeframe(interval string) (models.Timeframe, bool) {
	t := r.cfg.Cache.Timeframes
	switch interval {
	case t.Fine:
		return models.TimeframeFine, true
	case t.Short:
		return models.TimeframeShort, true
	case t.Medium:
		return models.TimeframeMedium, true
	case t.Long:
		return models.TimeframeLong, true
	default:
		return "", false
	}
}

// ReorderStats exposes drop and eviction totals across both buffers.
func (r *Router) ReorderStats() (dropped, evicted int64) {
	bd, be := r.books.Stats()
	td, te := r.trades.Stats()
	return bd + td, be + te
}
