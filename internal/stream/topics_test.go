package stream

import (
	"strings"
	"testing"

	"marketfeed/config"
)

func TestParseTopic(t *testing.T) {
	cases := []struct {
		raw     string
		channel string
		param   string
		symbol  string
		ok      bool
	}{
		{"tickers.BTCUSDT", "tickers", "", "BTCUSDT", true},
		{"orderbook.50.BTCUSDT", "orderbook", "50", "BTCUSDT", true},
		{"kline.15.ETHUSDT", "kline", "15", "ETHUSDT", true},
		{"publicTrade.BTCUSDT", "publicTrade", "", "BTCUSDT", true},
		{"nodots", "", "", "", false},
		{"a.b.c.d", "", "", "", false},
	}

	for _, tc := range cases {
		topic, ok := parseTopic(tc.raw)
		if ok != tc.ok {
			t.Errorf("parseTopic(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if topic.Channel != tc.channel || topic.Param != tc.param || topic.Symbol != tc.symbol {
			t.Errorf("parseTopic(%q) = %+v", tc.raw, topic)
		}
	}
}

func TestBuildTopicsCoversEverySeries(t *testing.T) {
	cfg := &config.Config{
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
		Cache: config.CacheConfig{
			OrderbookDepth: 50,
			Timeframes:     config.TimeframesConfig{Fine: "1", Short: "15", Medium: "60", Long: "240"},
		},
	}

	topics := buildTopics(cfg)

	// ticker + orderbook + trades + 4 klines + liquidation per symbol
	if len(topics) != 16 {
		t.Fatalf("topics = %d, want 16: %v", len(topics), topics)
	}
	for _, want := range []string{
		"tickers.BTCUSDT",
		"orderbook.50.BTCUSDT",
		"publicTrade.BTCUSDT",
		"kline.240.ETHUSDT",
		"allLiquidation.ETHUSDT",
	} {
		found := false
		for _, topic := range topics {
			if topic == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing topic %s in %v", want, topics)
		}
	}
}

func TestBatchTopics(t *testing.T) {
	topics := []string{"a", "b", "c", "d", "e"}

	batches := batchTopics(topics, 2)
	if len(batches) != 3 {
		t.Fatalf("batches = %v, want 3", batches)
	}
	if len(batches[0]) != 2 || len(batches[2]) != 1 {
		t.Errorf("uneven batching wrong: %v", batches)
	}

	var flat []string
	for _, b := range batches {
		flat = append(flat, b...)
	}
	if strings.Join(flat, "") != "abcde" {
		t.Errorf("batching reordered topics: %v", batches)
	}

	if got := batchTopics(nil, 8); got != nil {
		t.Errorf("empty input produced batches: %v", got)
	}
}
