package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
)

// fakeFetcher records which endpoints the scheduler pulled.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int)}
}

func (f *fakeFetcher) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeFetcher) counts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		out[k] = v
	}
	return out
}

func (f *fakeFetcher) Ticker(ctx context.Context, symbol string) (models.TickerPayload, error) {
	f.record("ticker")
	last := "100"
	return models.TickerPayload{LastPrice: &last}, nil
}

func (f *fakeFetcher) Orderbook(ctx context.Context, symbol string, depth int) (*models.RestOrderbook, error) {
	f.record("orderbook")
	return &models.RestOrderbook{Bids: [][]string{{"99", "1"}}, Asks: [][]string{{"101", "1"}}, UpdateID: 1}, nil
}

func (f *fakeFetcher) Trades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	f.record("trades")
	return []models.Trade{{ID: "t1", Price: 100, Size: 1, Time: time.Now()}}, nil
}

func (f *fakeFetcher) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	f.record("kline_" + interval)
	return []models.Candle{{Start: 1000, Close: 100}}, nil
}

func (f *fakeFetcher) FundingHistory(ctx context.Context, symbol string, limit int) ([]models.FundingPoint, error) {
	f.record("funding")
	return []models.FundingPoint{{Rate: 0.0001, Timestamp: time.Now()}}, nil
}

func (f *fakeFetcher) OpenInterest(ctx context.Context, symbol string, limit int) ([]models.OpenInterestPoint, error) {
	f.record("open_interest")
	return []models.OpenInterestPoint{{Timestamp: time.Now(), Value: 1}}, nil
}

func (f *fakeFetcher) RiskLimits(ctx context.Context, symbol string) ([]models.RiskLimit, error) {
	f.record("risk_limit")
	return []models.RiskLimit{{ID: 1, RiskLimitValue: 1000}}, nil
}

func schedulerConfig() *config.Config {
	return &config.Config{
		Symbols: []string{"BTCUSDT"},
		Cache: config.CacheConfig{
			RefreshIntervalMs:   1000,
			TradeHistory:        10,
			LiquidationWindowMs: 60_000,
			OpenInterestHistory: 10,
			KlineLimit:          10,
			OrderbookDepth:      50,
			Timeframes:          config.TimeframesConfig{Fine: "1", Short: "15", Medium: "60", Long: "240"},
			BudgetsMs: config.BudgetsConfig{
				Ticker:       60_000,
				Orderbook:    30_000,
				Trades:       60_000,
				KlineFine:    300_000,
				KlineShort:   900_000,
				KlineMedium:  3_600_000,
				KlineLong:    14_400_000,
				Funding:      28_800_000,
				OpenInterest: 300_000,
				RiskLimit:    86_400_000,
			},
		},
	}
}

// freshenAll stamps every component as just updated.
func freshenAll(e *Entry, at time.Time) {
	last := "100"
	e.ApplyTicker(models.TickerPayload{LastPrice: &last}, SourcePull, at)
	e.ApplyOrderbookSnapshot([][]string{{"99", "1"}}, [][]string{{"101", "1"}}, 1, SourcePull, at)
	e.ApplyTrades([]models.Trade{{ID: "seed", Time: at}}, SourcePull, at)
	for _, tf := range models.Timeframes {
		e.ApplyKlines(tf, []models.Candle{{Start: 1}}, SourcePull, at)
	}
	e.ApplyFunding([]models.FundingPoint{{Rate: 0.0001, Timestamp: at}}, SourcePull, at)
	e.ApplyOpenInterest([]models.OpenInterestPoint{{Timestamp: at, Value: 1}}, SourcePull, at)
	e.ApplyRiskLimits([]models.RiskLimit{{ID: 1}}, SourcePull, at)
}

func TestFreshnessDrivenRefresh(t *testing.T) {
	cfg := schedulerConfig()
	c := New(cfg.Cache)
	fetcher := newFakeFetcher()
	s := NewScheduler(cfg, c, fetcher)
	s.ctx = context.Background()

	entry := c.Entry("BTCUSDT")
	freshenAll(entry, time.Now())

	// Age only the ticker past its budget.
	last := "100"
	entry.ApplyTicker(models.TickerPayload{LastPrice: &last}, SourcePull, time.Now().Add(-2*time.Minute))

	s.refreshTick()
	s.wg.Wait()

	counts := fetcher.counts()
	if counts["ticker"] != 1 {
		t.Errorf("ticker pulls = %d, want 1", counts["ticker"])
	}
	if len(counts) != 1 {
		t.Errorf("unexpected pulls beyond ticker: %v", counts)
	}

	// The successful pull resets freshness; an immediate second tick
	// pulls nothing.
	s.refreshTick()
	s.wg.Wait()
	if counts := fetcher.counts(); counts["ticker"] != 1 {
		t.Errorf("ticker pulled again while fresh: %v", counts)
	}
}

func TestInitializeBootstrapsAllComponents(t *testing.T) {
	cfg := schedulerConfig()
	c := New(cfg.Cache)
	fetcher := newFakeFetcher()
	s := NewScheduler(cfg, c, fetcher)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	counts := fetcher.counts()
	for _, name := range []string{"ticker", "orderbook", "trades", "kline_1", "kline_15", "kline_60", "kline_240", "funding", "open_interest", "risk_limit"} {
		if counts[name] != 1 {
			t.Errorf("%s pulls = %d, want 1", name, counts[name])
		}
	}

	snap, err := c.GetSnapshot("BTCUSDT")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Ticker.LastPrice != 100 {
		t.Errorf("bootstrap did not populate ticker: %+v", snap.Ticker)
	}
	if len(snap.OrderBook.Bids) == 0 || len(snap.Trades) == 0 {
		t.Errorf("bootstrap left snapshot partially empty")
	}

	stats := c.GetStats()
	if stats["BTCUSDT"].PullUpdates == 0 {
		t.Errorf("pull counter not incremented: %+v", stats["BTCUSDT"])
	}
}

func TestGetSnapshotUnknownSymbol(t *testing.T) {
	c := New(schedulerConfig().Cache)
	if _, err := c.GetSnapshot("NOPE"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}
