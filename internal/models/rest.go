package models

import "encoding/json"

// RestEnvelope is the common wrapper around every pull API response.
type RestEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// ListResult is the common {"category","list"} result body.
type ListResult struct {
	Category string          `json:"category"`
	Symbol   string          `json:"symbol"`
	List     json.RawMessage `json:"list"`
}

// RestOrderbook is the orderbook endpoint result body.
type RestOrderbook struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	Ts       int64      `json:"ts"`
	UpdateID int64      `json:"u"`
}

// RestTrade is one row of the recent-trades endpoint.
type RestTrade struct {
	ExecID string `json:"execId"`
	Price  string `json:"price"`
	Size   string `json:"size"`
	Side   string `json:"side"`
	Time   string `json:"time"`
}

// RestFundingRate is one row of the funding-history endpoint.
type RestFundingRate struct {
	Symbol               string `json:"symbol"`
	FundingRate          string `json:"fundingRate"`
	FundingRateTimestamp string `json:"fundingRateTimestamp"`
}

// RestOpenInterest is one row of the open-interest endpoint.
type RestOpenInterest struct {
	OpenInterest string `json:"openInterest"`
	Timestamp    string `json:"timestamp"`
}

// RestRiskLimit is one tier of the risk-limit endpoint.
type RestRiskLimit struct {
	ID                int64  `json:"id"`
	Symbol            string `json:"symbol"`
	RiskLimitValue    string `json:"riskLimitValue"`
	MaintenanceMargin string `json:"maintenanceMargin"`
	InitialMargin     string `json:"initialMargin"`
	MaxLeverage       string `json:"maxLeverage"`
}
