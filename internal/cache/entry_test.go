package cache

import (
	"testing"
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		TradeHistory:        5,
		LiquidationWindowMs: 60_000,
		OpenInterestHistory: 3,
		KlineLimit:          4,
		OrderbookDepth:      50,
	}
}

func strptr(s string) *string { return &s }

func assertSorted(t *testing.T, ob models.OrderBook) {
	t.Helper()
	for i := 1; i < len(ob.Bids); i++ {
		if ob.Bids[i].Price >= ob.Bids[i-1].Price {
			t.Fatalf("bids not strictly descending: %v", ob.Bids)
		}
	}
	for i := 1; i < len(ob.Asks); i++ {
		if ob.Asks[i].Price <= ob.Asks[i-1].Price {
			t.Fatalf("asks not strictly ascending: %v", ob.Asks)
		}
	}
}

func TestPartialTickerMerge(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyTicker(models.TickerPayload{
		LastPrice: strptr("99.5"),
		Ask1Price: strptr("100.5"),
		MarkPrice: strptr("99.7"),
	}, SourcePull, now)

	// Delta carrying only one field must leave the rest untouched.
	e.ApplyTicker(models.TickerPayload{
		Bid1Price: strptr("100"),
	}, SourceStream, now)

	snap := e.Snapshot()
	if snap.Ticker.Bid1Price != 100 {
		t.Errorf("bid1 = %v, want 100", snap.Ticker.Bid1Price)
	}
	if snap.Ticker.LastPrice != 99.5 || snap.Ticker.Ask1Price != 100.5 || snap.Ticker.MarkPrice != 99.7 {
		t.Errorf("previously-set fields changed: %+v", snap.Ticker)
	}
}

func TestTickerSkipsBadField(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyTicker(models.TickerPayload{LastPrice: strptr("101")}, SourcePull, now)
	e.ApplyTicker(models.TickerPayload{
		LastPrice: strptr("not-a-number"),
		Bid1Price: strptr("100.9"),
	}, SourceStream, now)

	snap := e.Snapshot()
	if snap.Ticker.LastPrice != 101 {
		t.Errorf("bad field overwrote last price: %v", snap.Ticker.LastPrice)
	}
	if snap.Ticker.Bid1Price != 100.9 {
		t.Errorf("good field in same frame not applied: %v", snap.Ticker.Bid1Price)
	}
}

func TestOrderbookSnapshotThenDelta(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyOrderbookSnapshot(
		[][]string{{"100", "1"}, {"99", "2"}, {"101", "3"}},
		[][]string{{"102", "1"}, {"104", "2"}, {"103", "3"}},
		10, SourcePull, now,
	)
	snap := e.Snapshot()
	assertSorted(t, snap.OrderBook)
	if len(snap.OrderBook.Bids) != 3 || snap.OrderBook.Bids[0].Price != 101 {
		t.Fatalf("unexpected bids: %v", snap.OrderBook.Bids)
	}

	// Delta: update a level, remove a level, add a level.
	e.ApplyOrderbookDelta(
		[][]string{{"100", "5"}, {"99", "0"}, {"98.5", "1"}},
		[][]string{{"102", "0"}},
		11, SourceStream, now,
	)
	snap = e.Snapshot()
	assertSorted(t, snap.OrderBook)

	bids := snap.OrderBook.Bids
	if len(bids) != 3 {
		t.Fatalf("bids = %v, want 3 levels", bids)
	}
	if bids[0].Price != 101 || bids[1].Price != 100 || bids[1].Size != 5 || bids[2].Price != 98.5 {
		t.Errorf("delta merge wrong: %v", bids)
	}
	asks := snap.OrderBook.Asks
	if len(asks) != 2 || asks[0].Price != 103 {
		t.Errorf("ask removal wrong: %v", asks)
	}
	if snap.OrderBook.UpdateID != 11 {
		t.Errorf("update id = %d, want 11", snap.OrderBook.UpdateID)
	}
}

func TestOrderbookDeltaSkipsMalformedLevel(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyOrderbookSnapshot([][]string{{"100", "1"}}, nil, 1, SourcePull, now)
	e.ApplyOrderbookDelta([][]string{{"abc", "1"}, {"99", "2"}}, nil, 2, SourceStream, now)

	snap := e.Snapshot()
	assertSorted(t, snap.OrderBook)
	if len(snap.OrderBook.Bids) != 2 {
		t.Errorf("bids = %v, want the parsable levels only", snap.OrderBook.Bids)
	}
}

func TestTradesDedupeAndCap(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	base := time.Now()

	mk := func(id string, offset int) models.Trade {
		return models.Trade{ID: id, Price: 100, Size: 1, Side: "Buy", Time: base.Add(time.Duration(offset) * time.Second)}
	}

	e.ApplyTrades([]models.Trade{mk("a", 1), mk("b", 2)}, SourcePull, base)
	e.ApplyTrades([]models.Trade{mk("b", 2), mk("c", 3)}, SourceStream, base)

	snap := e.Snapshot()
	if len(snap.Trades) != 3 {
		t.Fatalf("trades = %d, want 3 after dedupe", len(snap.Trades))
	}
	if snap.Trades[0].ID != "c" {
		t.Errorf("newest trade first, got %s", snap.Trades[0].ID)
	}

	// Exceed the cap.
	e.ApplyTrades([]models.Trade{mk("d", 4), mk("e", 5), mk("f", 6)}, SourceStream, base)
	snap = e.Snapshot()
	if len(snap.Trades) != 5 {
		t.Errorf("trades = %d, want capped at 5", len(snap.Trades))
	}
	if snap.Trades[0].ID != "f" {
		t.Errorf("cap kept wrong end: %v", snap.Trades[0].ID)
	}
}

func TestKlineUpsert(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyKlines(models.TimeframeFine, []models.Candle{
		{Start: 100, Close: 1},
		{Start: 200, Close: 2},
	}, SourcePull, now)

	// Same start upserts, out-of-order start inserts sorted.
	e.ApplyKlines(models.TimeframeFine, []models.Candle{
		{Start: 200, Close: 2.5},
		{Start: 150, Close: 1.5},
	}, SourceStream, now)

	series := e.Snapshot().Candles[models.TimeframeFine]
	if len(series) != 3 {
		t.Fatalf("series = %v, want 3 bars", series)
	}
	if series[0].Start != 100 || series[1].Start != 150 || series[2].Start != 200 {
		t.Errorf("series not sorted: %v", series)
	}
	if series[2].Close != 2.5 {
		t.Errorf("upsert did not replace bar: %v", series[2])
	}

	// Cap keeps the most recent bars.
	e.ApplyKlines(models.TimeframeFine, []models.Candle{
		{Start: 300}, {Start: 400}, {Start: 500},
	}, SourceStream, now)
	series = e.Snapshot().Candles[models.TimeframeFine]
	if len(series) != 4 || series[0].Start != 200 {
		t.Errorf("cap wrong: %v", series)
	}
}

func TestLiquidationWindowPruning(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyLiquidations([]models.Liquidation{
		{Price: 1, Time: now.Add(-2 * time.Minute)},
		{Price: 2, Time: now.Add(-30 * time.Second)},
	}, SourceStream, now)

	snap := e.Snapshot()
	if len(snap.Liquidations) != 1 || snap.Liquidations[0].Price != 2 {
		t.Errorf("window pruning wrong: %v", snap.Liquidations)
	}
}

func TestOpenInterestHistoryCap(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	base := time.Now().Truncate(time.Millisecond)

	var points []models.OpenInterestPoint
	for i := 0; i < 5; i++ {
		points = append(points, models.OpenInterestPoint{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     float64(i),
		})
	}
	e.ApplyOpenInterest(points, SourcePull, base)

	history := e.Snapshot().OpenInterest
	if len(history) != 3 {
		t.Fatalf("history = %d, want capped at 3", len(history))
	}
	if history[2].Value != 4 {
		t.Errorf("cap kept wrong end: %v", history)
	}
}

func TestFreshnessRecordsSource(t *testing.T) {
	e := newEntry("BTCUSDT", testCacheConfig())
	now := time.Now()

	e.ApplyTicker(models.TickerPayload{LastPrice: strptr("1")}, SourcePull, now)
	e.ApplyOrderbookSnapshot([][]string{{"1", "1"}}, nil, 1, SourceStream, now)

	fresh := e.Freshness()
	if fresh[ComponentTicker].Source != SourcePull {
		t.Errorf("ticker source = %v, want pull", fresh[ComponentTicker].Source)
	}
	if fresh[ComponentOrderbook].Source != SourceStream {
		t.Errorf("orderbook source = %v, want stream", fresh[ComponentOrderbook].Source)
	}

	stream, pull := e.Counters()
	if stream != 1 || pull != 1 {
		t.Errorf("counters = %d/%d, want 1/1", stream, pull)
	}
}
