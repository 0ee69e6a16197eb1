package schema

import "github.com/shopspring/decimal"

// PriceTick is the latest known quote for a single instrument.
// The feed is expected to deliver bid <= mid <= ask but this is not enforced.
type PriceTick struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Mid    decimal.Decimal `json:"mid"`
}

// Midpoint returns the quoted mid price, deriving (bid+ask)/2 when the feed
// omitted it.
func (t PriceTick) Midpoint() decimal.Decimal {
	if !t.Mid.IsZero() {
		return t.Mid
	}
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns the bid-ask spread.
func (t PriceTick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}
