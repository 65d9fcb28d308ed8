package stream

import (
	"fmt"
	"strings"

	"marketfeed/config"
)

const (
	channelTicker      = "tickers"
	channelOrderbook   = "orderbook"
	channelTrade       = "publicTrade"
	channelKline       = "kline"
	channelLiquidation = "allLiquidation"
)

// Topic is one parsed stream topic. Param carries the middle segment for
// channels that have one (orderbook depth, kline interval).
type Topic struct {
	Channel string
	Param   string
	Symbol  string
}

// parseTopic splits "channel[.param].SYMBOL". The symbol is always the last
// segment, so symbols containing no dots are the only supported shape.
func parseTopic(raw string) (Topic, bool) {
	parts := strings.Split(raw, ".")
	switch len(parts) {
	case 2:
		return Topic{Channel: parts[0], Symbol: parts[1]}, true
	case 3:
		return Topic{Channel: parts[0], Param: parts[1], Symbol: parts[2]}, true
	default:
		return Topic{}, false
	}
}

// buildTopics lists every topic one symbol needs: ticker, orderbook, trades,
// the four kline series and liquidations.
func buildTopics(cfg *config.Config) []string {
	tf := cfg.Cache.Timeframes
	intervals := []string{tf.Fine, tf.Short, tf.Medium, tf.Long}

	var topics []string
	for _, symbol := range cfg.Symbols {
		topics = append(topics,
			fmt.Sprintf("%s.%s", channelTicker, symbol),
			fmt.Sprintf("%s.%d.%s", channelOrderbook, cfg.Cache.OrderbookDepth, symbol),
			fmt.Sprintf("%s.%s", channelTrade, symbol),
		)
		for _, interval := range intervals {
			topics = append(topics, fmt.Sprintf("%s.%s.%s", channelKline, interval, symbol))
		}
		topics = append(topics, fmt.Sprintf("%s.%s", channelLiquidation, symbol))
	}
	return topics
}

// batchTopics splits topics into subscription batches of at most size.
func batchTopics(topics []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var batches [][]string
	for len(topics) > size {
		batches = append(batches, topics[:size])
		topics = topics[size:]
	}
	if len(topics) > 0 {
		batches = append(batches, topics)
	}
	return batches
}
