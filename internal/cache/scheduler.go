package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
	"marketfeed/logger"
)

// Fetcher is the pull path the scheduler falls back to when a component ages
// past its budget. Implementations go through the rate limiter.
type Fetcher interface {
	Ticker(ctx context.Context, symbol string) (models.TickerPayload, error)
	Orderbook(ctx context.Context, symbol string, depth int) (*models.RestOrderbook, error)
	Trades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	FundingHistory(ctx context.Context, symbol string, limit int) ([]models.FundingPoint, error)
	OpenInterest(ctx context.Context, symbol string, limit int) ([]models.OpenInterestPoint, error)
	RiskLimits(ctx context.Context, symbol string) ([]models.RiskLimit, error)
}

// Scheduler keeps every tracked component inside its staleness budget: the
// streaming path keeps components fresh for free, and the scheduler pulls
// whatever the stream has left behind.
type Scheduler struct {
	cfg     *config.Config
	cache   *Cache
	fetcher Fetcher
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	inflight sync.Map // symbol -> struct{}
}

func NewScheduler(cfg *config.Config, c *Cache, fetcher Fetcher) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		cache:   c,
		fetcher: fetcher,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Initialize performs one full pull-based bootstrap per symbol so no symbol
// is ever visible with an empty snapshot. Per-component failures are logged
// and left for the background loop to retry; only context cancellation aborts
// the bootstrap.
func (s *Scheduler) Initialize(ctx context.Context) error {
	log := s.log.WithComponent("scheduler").WithFields(logger.Fields{"operation": "initialize"})
	log.WithFields(logger.Fields{"symbols": len(s.cfg.Symbols)}).Info("bootstrapping snapshots via pull path")

	for _, symbol := range s.cfg.Symbols {
		for _, comp := range Components {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.refreshComponent(ctx, symbol, comp); err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"symbol":    symbol,
					"component": string(comp),
				}).Warn("bootstrap pull failed, background loop will retry")
			}
		}
	}

	log.Info("bootstrap complete")
	return nil
}

// Start launches the background refresh loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.log.WithComponent("scheduler").Info("refresh scheduler started")
	return nil
}

// Stop waits for the refresh loop and any in-flight pulls to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.WithComponent("scheduler").Info("refresh scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Cache.RefreshIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.refreshTick()
		}
	}
}

// refreshTick issues one pull per stale component per symbol. Symbols still
// refreshing from a previous tick are skipped rather than queued, so a slow
// endpoint cannot pile up work.
func (s *Scheduler) refreshTick() {
	now := time.Now()
	for _, symbol := range s.cfg.Symbols {
		stale := s.staleComponents(symbol, now)
		if len(stale) == 0 {
			continue
		}
		if _, busy := s.inflight.LoadOrStore(symbol, struct{}{}); busy {
			continue
		}

		s.wg.Add(1)
		go func(symbol string, stale []Component) {
			defer s.wg.Done()
			defer s.inflight.Delete(symbol)

			for _, comp := range stale {
				if s.ctx.Err() != nil {
					return
				}
				if err := s.refreshComponent(s.ctx, symbol, comp); err != nil {
					// Retried on the next tick, not immediately.
					s.log.WithComponent("scheduler").WithError(err).WithFields(logger.Fields{
						"symbol":    symbol,
						"component": string(comp),
					}).Warn("pull refresh failed")
				}
			}
		}(symbol, stale)
	}
}

// staleComponents returns the components whose freshness age exceeds their
// budget, including components never successfully fetched.
func (s *Scheduler) staleComponents(symbol string, now time.Time) []Component {
	fresh := s.cache.Entry(symbol).Freshness()

	var stale []Component
	for _, comp := range Components {
		f, ok := fresh[comp]
		if !ok || now.Sub(f.UpdatedAt) > budget(s.cfg.Cache.BudgetsMs, comp) {
			stale = append(stale, comp)
		}
	}
	return stale
}

func (s *Scheduler) refreshComponent(ctx context.Context, symbol string, comp Component) error {
	entry := s.cache.Entry(symbol)
	now := time.Now()

	if tf, ok := componentTimeframe(comp); ok {
		interval := s.interval(tf)
		bars, err := s.fetcher.Klines(ctx, symbol, interval, s.cfg.Cache.KlineLimit)
		if err != nil {
			return err
		}
		entry.ApplyKlines(tf, bars, SourcePull, now)
		return nil
	}

	switch comp {
	case ComponentTicker:
		payload, err := s.fetcher.Ticker(ctx, symbol)
		if err != nil {
			return err
		}
		entry.ApplyTicker(payload, SourcePull, now)
	case ComponentOrderbook:
		ob, err := s.fetcher.Orderbook(ctx, symbol, s.cfg.Cache.OrderbookDepth)
		if err != nil {
			return err
		}
		entry.ApplyOrderbookSnapshot(ob.Bids, ob.Asks, ob.UpdateID, SourcePull, now)
	case ComponentTrades:
		trades, err := s.fetcher.Trades(ctx, symbol, s.cfg.Cache.TradeHistory)
		if err != nil {
			return err
		}
		entry.ApplyTrades(trades, SourcePull, now)
	case ComponentFunding:
		points, err := s.fetcher.FundingHistory(ctx, symbol, 200)
		if err != nil {
			return err
		}
		entry.ApplyFunding(points, SourcePull, now)
	case ComponentOpenInterest:
		points, err := s.fetcher.OpenInterest(ctx, symbol, s.cfg.Cache.OpenInterestHistory)
		if err != nil {
			return err
		}
		entry.ApplyOpenInterest(points, SourcePull, now)
	case ComponentRiskLimit:
		rows, err := s.fetcher.RiskLimits(ctx, symbol)
		if err != nil {
			return err
		}
		entry.ApplyRiskLimits(rows, SourcePull, now)
	}
	return nil
}

func (s *Scheduler) interval(tf models.Timeframe) string {
	t := s.cfg.Cache.Timeframes
	switch tf {
	case models.TimeframeFine:
		return t.Fine
	case models.TimeframeShort:
		return t.Short
	case models.TimeframeMedium:
		return t.Medium
	default:
		return t.Long
	}
}
