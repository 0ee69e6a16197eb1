package schema

import "github.com/shopspring/decimal"

// AccountSnapshot is the REST-fetched view of the account. It is a read-only
// input to the derived-state compute layer and is refreshed on a pull schedule
// or on invalidation after trade/position mutations.
type AccountSnapshot struct {
	Balance         decimal.Decimal `json:"balance"`
	Equity          decimal.Decimal `json:"equity"`
	UsedMargin      decimal.Decimal `json:"used_margin"`
	AvailableMargin decimal.Decimal `json:"available_margin"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	MarginRatio     decimal.Decimal `json:"margin_ratio"`
}
