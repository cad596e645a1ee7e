package domain

import (
	"github.com/shopspring/decimal"
)

// Account is the per-run accounting ledger: cash, realized PnL and the
// per-symbol positions. One engine owns one account; nothing is shared.
type Account struct {
	Cash     decimal.Decimal
	Realized decimal.Decimal

	positions map[string]*Position

	equity     decimal.Decimal
	equitySet  bool
	equityPeak decimal.Decimal
}

// NewAccount creates an account with starting cash.
func NewAccount(cash decimal.Decimal) *Account {
	return &Account{
		Cash:      cash,
		positions: make(map[string]*Position),
	}
}

// Position returns the position for a symbol, creating a flat one on first use.
func (a *Account) Position(symbol string) *Position {
	p, ok := a.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		a.positions[symbol] = p
	}
	return p
}

// ApplyFill settles a fill against cash and the position.
func (a *Account) ApplyFill(f Fill) FillOutcome {
	p := a.Position(f.Symbol)
	out := p.ApplyFill(f.Side, f.Qty, f.Price, f.Bar)

	notional := f.Price.Mul(f.Qty)
	if f.Side == SideBuy {
		a.Cash = a.Cash.Sub(notional)
	} else {
		a.Cash = a.Cash.Add(notional)
	}
	a.Cash = a.Cash.Sub(f.Commission)
	a.Realized = a.Realized.Add(out.Realized).Sub(f.Commission)
	return out
}

// MarkToMarket values all positions at the given closes and returns equity
// plus drawdown from the running peak.
func (a *Account) MarkToMarket(closes map[string]decimal.Decimal) (equity, drawdown decimal.Decimal) {
	equity = a.Cash
	for sym, p := range a.positions {
		if p.Qty.IsZero() {
			continue
		}
		if close, ok := closes[sym]; ok {
			equity = equity.Add(p.Qty.Mul(close))
		}
	}
	a.equity = equity
	a.equitySet = true
	if equity.GreaterThan(a.equityPeak) {
		a.equityPeak = equity
	}
	return equity, a.equityPeak.Sub(equity)
}

// LastEquity returns the most recent mark. Void bars carry it forward
// unchanged instead of re-marking.
func (a *Account) LastEquity() (decimal.Decimal, bool) {
	return a.equity, a.equitySet
}

// Drawdown returns the current distance from the equity peak.
func (a *Account) Drawdown() decimal.Decimal {
	if !a.equitySet {
		return decimal.Zero
	}
	return a.equityPeak.Sub(a.equity)
}
