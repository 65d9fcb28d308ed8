package models

import "encoding/json"

// SubscribeRequest is the streaming subscribe message.
type SubscribeRequest struct {
	Op    string   `json:"op"`
	Args  []string `json:"args"`
	ReqID string   `json:"req_id,omitempty"`
}

// SubscriptionAck is the (optional) response to a subscribe request.
type SubscriptionAck struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
	ReqID   string `json:"req_id"`
}

// StreamFrame is one message pushed over the persistent connection. Data
// stays raw until the channel-specific consumer decodes it.
type StreamFrame struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

// OrderbookPayload is the order-book frame body, shared by snapshot and delta
// frames. Levels arrive as [price, size] string pairs.
type OrderbookPayload struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateID int64      `json:"u"`
	Seq      int64      `json:"seq"`
}

// TradeEntry is one trade inside a publicTrade frame.
type TradeEntry struct {
	Price string `json:"p"`
	Size  string `json:"v"`
	Side  string `json:"S"`
	Time  int64  `json:"T"`
	ID    string `json:"i"`
}

// KlineEntry is one bar inside a kline frame.
type KlineEntry struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Confirm  bool   `json:"confirm"`
}

// TickerPayload is a ticker snapshot or delta frame body. Pointer fields
// distinguish absent fields from present-but-zero so partial deltas merge
// correctly.
type TickerPayload struct {
	Symbol       string  `json:"symbol"`
	LastPrice    *string `json:"lastPrice"`
	Bid1Price    *string `json:"bid1Price"`
	Ask1Price    *string `json:"ask1Price"`
	MarkPrice    *string `json:"markPrice"`
	IndexPrice   *string `json:"indexPrice"`
	Price24hPcnt *string `json:"price24hPcnt"`
	HighPrice24h *string `json:"highPrice24h"`
	LowPrice24h  *string `json:"lowPrice24h"`
	Volume24h    *string `json:"volume24h"`
	Turnover24h  *string `json:"turnover24h"`
	FundingRate  *string `json:"fundingRate"`
	OpenInterest *string `json:"openInterest"`
}

// LiquidationEntry is one forced liquidation inside a liquidation frame.
type LiquidationEntry struct {
	Symbol      string `json:"symbol"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Side        string `json:"side"`
	UpdatedTime int64  `json:"updatedTime"`
}
