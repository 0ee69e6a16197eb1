package schema

import "github.com/shopspring/decimal"

// PositionSide distinguishes long and short exposure.
type PositionSide string

const (
	// SideLong profits when the mark price rises above entry.
	SideLong PositionSide = "LONG"
	// SideShort profits when the mark price falls below entry.
	SideShort PositionSide = "SHORT"
)

// LivePosition is the streamed state of a single open position, keyed by ID.
// Updates replace the entry wholesale; removal happens only on an explicit
// close notification, never by absence or timeout.
type LivePosition struct {
	ID            int64           `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Leverage      int             `json:"leverage"`
}

// IsLong reports whether the position is long.
func (p LivePosition) IsLong() bool {
	return p.Side == SideLong
}

// PositionClose notifies that the server closed a position.
type PositionClose struct {
	PositionID  int64           `json:"position_id"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}
