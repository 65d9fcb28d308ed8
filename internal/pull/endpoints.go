package pull

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"marketfeed/internal/models"
)

const (
	endpointTickers      = "/v5/market/tickers"
	endpointOrderbook    = "/v5/market/orderbook"
	endpointRecentTrade  = "/v5/market/recent-trade"
	endpointKline        = "/v5/market/kline"
	endpointFunding      = "/v5/market/funding/history"
	endpointOpenInterest = "/v5/market/open-interest"
	endpointRiskLimit    = "/v5/market/risk-limit"
)

// Ticker fetches the full ticker row for one symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (models.TickerPayload, error) {
	query := url.Values{"category": {c.category}, "symbol": {symbol}}
	result, err := c.get(ctx, endpointTickers, query)
	if err != nil {
		return models.TickerPayload{}, err
	}

	var body struct {
		List []models.TickerPayload `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return models.TickerPayload{}, fmt.Errorf("tickers: decode result: %w", err)
	}
	if len(body.List) == 0 {
		return models.TickerPayload{}, fmt.Errorf("tickers: empty list for %s", symbol)
	}
	return body.List[0], nil
}

// Orderbook fetches a full order book snapshot.
func (c *Client) Orderbook(ctx context.Context, symbol string, depth int) (*models.RestOrderbook, error) {
	query := url.Values{
		"category": {c.category},
		"symbol":   {symbol},
		"limit":    {fmt.Sprintf("%d", depth)},
	}
	result, err := c.get(ctx, endpointOrderbook, query)
	if err != nil {
		return nil, err
	}

	var ob models.RestOrderbook
	if err := json.Unmarshal(result, &ob); err != nil {
		return nil, fmt.Errorf("orderbook: decode result: %w", err)
	}
	return &ob, nil
}

// Trades fetches the most recent trades, skipping rows with unparseable
// numerics rather than failing the batch.
func (c *Client) Trades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	query := url.Values{
		"category": {c.category},
		"symbol":   {symbol},
		"limit":    {fmt.Sprintf("%d", limit)},
	}
	result, err := c.get(ctx, endpointRecentTrade, query)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []models.RestTrade `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("trades: decode result: %w", err)
	}

	trades := make([]models.Trade, 0, len(body.List))
	for _, row := range body.List {
		price, okP := models.ParseFloat(row.Price)
		size, okS := models.ParseFloat(row.Size)
		ts, okT := models.ParseInt(row.Time)
		if row.ExecID == "" || !okP || !okS || !okT {
			continue
		}
		trades = append(trades, models.Trade{
			ID:    row.ExecID,
			Price: price,
			Size:  size,
			Side:  row.Side,
			Time:  time.UnixMilli(ts),
		})
	}
	return trades, nil
}

// Klines fetches OHLCV bars for one interval. Rows arrive as
// [start, open, high, low, close, volume, turnover] string arrays.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	query := url.Values{
		"category": {c.category},
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {fmt.Sprintf("%d", limit)},
	}
	result, err := c.get(ctx, endpointKline, query)
	if err != nil {
		return nil, err
	}

	var body struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("kline: decode result: %w", err)
	}

	bars := make([]models.Candle, 0, len(body.List))
	for _, row := range body.List {
		if len(row) < 6 {
			continue
		}
		start, okT := models.ParseInt(row[0])
		open, okO := models.ParseFloat(row[1])
		high, okH := models.ParseFloat(row[2])
		low, okL := models.ParseFloat(row[3])
		cls, okC := models.ParseFloat(row[4])
		volume, okV := models.ParseFloat(row[5])
		if !okT || !okO || !okH || !okL || !okC || !okV {
			continue
		}
		bars = append(bars, models.Candle{
			Start:  start,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
			Volume: volume,
		})
	}
	return bars, nil
}

// FundingHistory fetches past funding-rate settlements.
func (c *Client) FundingHistory(ctx context.Context, symbol string, limit int) ([]models.FundingPoint, error) {
	query := url.Values{
		"category": {c.category},
		"symbol":   {symbol},
		"limit":    {fmt.Sprintf("%d", limit)},
	}
	result, err := c.get(ctx, endpointFunding, query)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []models.RestFundingRate `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("funding: decode result: %w", err)
	}

	points := make([]models.FundingPoint, 0, len(body.List))
	for _, row := range body.List {
		fr, okR := models.ParseFloat(row.FundingRate)
		ts, okT := models.ParseInt(row.FundingRateTimestamp)
		if !okR || !okT {
			continue
		}
		points = append(points, models.FundingPoint{Rate: fr, Timestamp: time.UnixMilli(ts)})
	}
	return points, nil
}

// OpenInterest fetches recent open-interest samples at five-minute
// granularity.
func (c *Client) OpenInterest(ctx context.Context, symbol string, limit int) ([]models.OpenInterestPoint, error) {
	query := url.Values{
		"category":     {c.category},
		"symbol":       {symbol},
		"intervalTime": {"5min"},
		"limit":        {fmt.Sprintf("%d", limit)},
	}
	result, err := c.get(ctx, endpointOpenInterest, query)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []models.RestOpenInterest `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("open interest: decode result: %w", err)
	}

	points := make([]models.OpenInterestPoint, 0, len(body.List))
	for _, row := range body.List {
		value, okV := models.ParseFloat(row.OpenInterest)
		ts, okT := models.ParseInt(row.Timestamp)
		if !okV || !okT {
			continue
		}
		points = append(points, models.OpenInterestPoint{Timestamp: time.UnixMilli(ts), Value: value})
	}
	return points, nil
}

// RiskLimits fetches the symbol's risk-limit ladder.
func (c *Client) RiskLimits(ctx context.Context, symbol string) ([]models.RiskLimit, error) {
	query := url.Values{"category": {c.category}, "symbol": {symbol}}
	result, err := c.get(ctx, endpointRiskLimit, query)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []models.RestRiskLimit `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("risk limit: decode result: %w", err)
	}

	rows := make([]models.RiskLimit, 0, len(body.List))
	for _, row := range body.List {
		value, _ := models.ParseFloat(row.RiskLimitValue)
		mm, _ := models.ParseFloat(row.MaintenanceMargin)
		im, _ := models.ParseFloat(row.InitialMargin)
		lev, _ := models.ParseFloat(row.MaxLeverage)
		rows = append(rows, models.RiskLimit{
			ID:                row.ID,
			RiskLimitValue:    value,
			MaintenanceMargin: mm,
			InitialMargin:     im,
			MaxLeverage:       lev,
		})
	}
	return rows, nil
}
