package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketfeed/internal/cache"
	"marketfeed/internal/models"
	"marketfeed/logger"
)

func TestRouteDropsWhenSymbolQueueFull(t *testing.T) {
	cfg := routerConfig()
	router := NewRouter(cfg, cache.New(cfg.Cache))

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		router: router,
		frames: make(chan models.StreamFrame, 4),
		queues: map[string]chan models.StreamFrame{
			"BTCUSDT": make(chan models.StreamFrame, 1),
		},
		ctx: ctx,
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger(),
	}

	// No consumer: the first frame fills the queue, the second must be
	// dropped without blocking the routing loop.
	occupied := models.StreamFrame{Topic: "tickers.BTCUSDT", Ts: 1}
	m.queues["BTCUSDT"] <- occupied

	m.wg.Add(1)
	go m.route()

	m.frames <- models.StreamFrame{Topic: "tickers.BTCUSDT", Ts: 2}
	m.frames <- models.StreamFrame{Topic: "tickers.ETHUSDT", Ts: 3} // unknown symbol, discarded

	deadline := time.Now().Add(2 * time.Second)
	for len(m.frames) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("routing loop stalled on a full queue")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	m.wg.Wait()

	if len(m.queues["BTCUSDT"]) != 1 {
		t.Fatalf("queue length = %d, want the original occupant only", len(m.queues["BTCUSDT"]))
	}
	if got := <-m.queues["BTCUSDT"]; got.Ts != occupied.Ts {
		t.Errorf("queued frame = %+v, want the original occupant", got)
	}
}
