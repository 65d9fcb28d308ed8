package stream

import (
	"context"
	"testing"
	"time"

	"marketfeed/config"
	"marketfeed/internal/models"
)

func streamConfig() config.StreamConfig {
	return config.StreamConfig{
		TopicBatchSize:          8,
		QueueBuffer:             16,
		DialTimeoutMs:           200,
		AckTimeoutMs:            100,
		PingIntervalMs:          20000,
		ReachabilityTimeoutMs:   100,
		ReconnectMinDelayMs:     1000,
		ReconnectMaxDelayMs:     60000,
		ReconnectMaxAttempts:    10,
		RapidFailureThresholdMs: 5000,
	}
}

func TestBackoffProgressionNeverDecreases(t *testing.T) {
	bo := newBackoff(streamConfig())

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}

	var got []time.Duration
	for range want {
		got = append(got, bo.Duration())
	}

	for i, d := range got {
		if d != want[i] {
			t.Fatalf("delay[%d] = %v, want %v (sequence %v)", i, d, want[i], got)
		}
		if i > 0 && d < got[i-1] {
			t.Fatalf("delay decreased: %v", got)
		}
	}

	bo.Reset()
	if d := bo.Duration(); d != 1*time.Second {
		t.Errorf("delay after reset = %v, want 1s", d)
	}
}

func TestRunDegradesUnreachableEndpoint(t *testing.T) {
	cfg := streamConfig()
	cfg.ReconnectMinDelayMs = 1
	cfg.ReconnectMaxDelayMs = 5
	cfg.ReconnectMaxAttempts = 2

	frames := make(chan models.StreamFrame, 1)
	// Discard port, nothing listens there.
	c := newConn(cfg, "ws://127.0.0.1:9", []string{"tickers.BTCUSDT"}, frames)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.run(ctx)

	if got := c.State(); got != StateDegraded {
		t.Errorf("state after exhausted attempts = %s, want %s", got, StateDegraded)
	}
}

func TestRunClosedOnCancel(t *testing.T) {
	cfg := streamConfig()
	cfg.ReconnectMinDelayMs = 50
	cfg.ReconnectMaxDelayMs = 100

	frames := make(chan models.StreamFrame, 1)
	c := newConn(cfg, "ws://127.0.0.1:9", []string{"tickers.BTCUSDT"}, frames)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state after cancel = %s, want %s", got, StateClosed)
	}
}
