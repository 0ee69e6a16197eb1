// Package rest consumes the read-only collaborator endpoints: account
// snapshot, position list, 24h ticker statistics, and historical candles.
// Responses are cached per endpoint and invalidated explicitly after
// trade/position mutations observed on the stream.
package rest

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/tradefeed/internal/schema"
)

// Position is the REST view of a position. It carries fields the stream
// omits, such as margin and liquidation data.
type Position struct {
	ID               int64               `json:"id"`
	Symbol           string              `json:"symbol"`
	Side             schema.PositionSide `json:"side"`
	Status           string              `json:"status"`
	Quantity         decimal.Decimal     `json:"quantity"`
	EntryPrice       decimal.Decimal     `json:"entry_price"`
	MarkPrice        decimal.Decimal     `json:"mark_price"`
	Leverage         int                 `json:"leverage"`
	InitialMargin    decimal.Decimal     `json:"initial_margin"`
	UnrealizedPnL    decimal.Decimal     `json:"unrealized_pnl"`
	RealizedPnL      decimal.Decimal     `json:"realized_pnl"`
	LiquidationPrice decimal.Decimal     `json:"liquidation_price"`
	StopLoss         *decimal.Decimal    `json:"stop_loss"`
	TakeProfit       *decimal.Decimal    `json:"take_profit"`
}

// TradeType classifies an executed trade.
type TradeType string

const (
	TradeTypeOpen      TradeType = "OPEN"
	TradeTypeClose     TradeType = "CLOSE"
	TradeTypeAdd       TradeType = "ADD"
	TradeTypeLiquidate TradeType = "LIQUIDATE"
)

// Trade is one executed fill from the account's trade history.
type Trade struct {
	ID         int64               `json:"id"`
	PositionID int64               `json:"position_id"`
	OrderID    int64               `json:"order_id"`
	Symbol     string              `json:"symbol"`
	Side       schema.PositionSide `json:"side"`
	Type       TradeType           `json:"type"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Price      decimal.Decimal     `json:"price"`
	PnL        decimal.Decimal     `json:"pnl"`
	Fee        decimal.Decimal     `json:"fee"`
	CreatedAt  string              `json:"created_at"`
}

// Ticker24h aggregates rolling 24 hour statistics for one instrument.
type Ticker24h struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
}

// CandleInterval names a supported candle resolution.
type CandleInterval string

// Supported candle resolutions.
const (
	Interval1s  CandleInterval = "1s"
	Interval1m  CandleInterval = "1m"
	Interval5m  CandleInterval = "5m"
	Interval15m CandleInterval = "15m"
	Interval1h  CandleInterval = "1h"
	Interval4h  CandleInterval = "4h"
	Interval1d  CandleInterval = "1d"
	Interval1w  CandleInterval = "1w"
)

// Valid reports whether the interval is one the server understands.
func (i CandleInterval) Valid() bool {
	switch i {
	case Interval1s, Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d, Interval1w:
		return true
	default:
		return false
	}
}

// Candle is a single OHLC bar.
type Candle struct {
	Time  int64           `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}
