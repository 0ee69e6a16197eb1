// Package equity computes derived financial quantities from the account
// snapshot and the live position set. All functions are pure; Calculator adds
// a memoization layer so unchanged inputs do not trigger recomputation.
package equity

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tradefeed/internal/schema"
)

var hundred = decimal.NewFromInt(100)

// LiveEquity returns balance + sum of unrealized PnL over the live positions.
// With no live positions the snapshot's own equity field is returned: the
// snapshot is trusted only in the absence of fresher streamed data. The
// boolean is false when no account snapshot is loaded yet.
func LiveEquity(account *schema.AccountSnapshot, positions []schema.LivePosition) (decimal.Decimal, bool) {
	if account == nil {
		return decimal.Decimal{}, false
	}
	if len(positions) == 0 {
		if !account.Equity.IsZero() {
			return account.Equity, true
		}
		return account.Balance, true
	}
	total := account.Balance
	for _, position := range positions {
		total = total.Add(position.UnrealizedPnL)
	}
	return total, true
}

// UnrealizedPercent returns pnl/margin*100, or exactly zero when margin is
// non-positive so display logic stays total.
func UnrealizedPercent(pnl, margin decimal.Decimal) decimal.Decimal {
	if !margin.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(margin).Mul(hundred)
}

// UnrealizedPnL marks an open position at the given price.
// Long: quantity * (mark - entry). Short: quantity * (entry - mark).
func UnrealizedPnL(side schema.PositionSide, quantity, entry, mark decimal.Decimal) decimal.Decimal {
	if side == schema.SideLong {
		return quantity.Mul(mark.Sub(entry))
	}
	return quantity.Mul(entry.Sub(mark))
}

// InitialMargin returns (quantity * price) / leverage. Zero or negative
// leverage yields zero margin.
func InitialMargin(quantity, price decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 {
		return decimal.Zero
	}
	return quantity.Mul(price).Div(decimal.NewFromInt(int64(leverage)))
}

// LiquidationPrice computes the price at which a position is liquidated.
// Long: entry * (1 - 1/leverage + maintenanceRate).
// Short: entry * (1 + 1/leverage - maintenanceRate).
func LiquidationPrice(entry decimal.Decimal, leverage int, side schema.PositionSide, maintenanceRate decimal.Decimal) decimal.Decimal {
	if leverage <= 0 {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	impact := one.Div(decimal.NewFromInt(int64(leverage)))
	if side == schema.SideLong {
		return entry.Mul(one.Sub(impact).Add(maintenanceRate))
	}
	return entry.Mul(one.Add(impact).Sub(maintenanceRate))
}

// LiquidationDistance returns how far the mark price sits from the
// liquidation price, as a percentage of the mark price. Zero when the mark
// price is non-positive.
func LiquidationDistance(mark, liquidation decimal.Decimal) decimal.Decimal {
	if !mark.IsPositive() {
		return decimal.Zero
	}
	return mark.Sub(liquidation).Abs().Div(mark).Mul(hundred)
}

// Summary aggregates live account metrics from the balance and the streamed
// position set. Used margin is derived from each position's entry notional and
// leverage; the margin ratio is zero when equity is non-positive.
type Summary struct {
	Balance         decimal.Decimal
	Equity          decimal.Decimal
	UsedMargin      decimal.Decimal
	AvailableMargin decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	MarginRatio     decimal.Decimal
}

// Summarize recomputes the account summary against the live position set.
func Summarize(balance decimal.Decimal, positions []schema.LivePosition) Summary {
	unrealized := decimal.Zero
	used := decimal.Zero
	for _, position := range positions {
		unrealized = unrealized.Add(position.UnrealizedPnL)
		used = used.Add(InitialMargin(position.Quantity, position.EntryPrice, position.Leverage))
	}

	eq := balance.Add(unrealized)
	available := eq.Sub(used)

	ratio := decimal.Zero
	if eq.IsPositive() {
		ratio = used.Div(eq)
	}

	return Summary{
		Balance:         balance,
		Equity:          eq,
		UsedMargin:      used,
		AvailableMargin: available,
		UnrealizedPnL:   unrealized,
		MarginRatio:     ratio,
	}
}

// Calculator memoizes LiveEquity: the result is recomputed only when the
// account snapshot or the position set content changes.
type Calculator struct {
	mu        sync.Mutex
	account   *schema.AccountSnapshot
	positions []schema.LivePosition
	value     decimal.Decimal
	loaded    bool
	primed    bool
}

// NewCalculator returns an empty memoizing calculator.
func NewCalculator() *Calculator {
	return new(Calculator)
}

// LiveEquity returns the memoized live equity for the inputs.
func (c *Calculator) LiveEquity(account *schema.AccountSnapshot, positions []schema.LivePosition) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.primed && sameAccount(c.account, account) && samePositions(c.positions, positions) {
		return c.value, c.loaded
	}

	value, loaded := LiveEquity(account, positions)
	c.account = cloneAccount(account)
	c.positions = append([]schema.LivePosition(nil), positions...)
	c.value = value
	c.loaded = loaded
	c.primed = true
	return value, loaded
}

func cloneAccount(account *schema.AccountSnapshot) *schema.AccountSnapshot {
	if account == nil {
		return nil
	}
	clone := *account
	return &clone
}

func sameAccount(a, b *schema.AccountSnapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Balance.Equal(b.Balance) && a.Equity.Equal(b.Equity)
}

func samePositions(a, b []schema.LivePosition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].UnrealizedPnL.Equal(b[i].UnrealizedPnL) {
			return false
		}
	}
	return true
}
