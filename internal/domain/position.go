package domain

import (
	"github.com/shopspring/decimal"
)

// PositionSide is the direction of an open position.
type PositionSide int8

const (
	Flat  PositionSide = 0
	Long  PositionSide = 1
	Short PositionSide = -1
)

// Position is the per-symbol signed holding plus its protective-stop
// ratchet state. The accounting ledger owns positions exclusively; the
// position maintainer only reads them.
type Position struct {
	Symbol   string
	Qty      decimal.Decimal // signed: positive long, negative short
	AvgEntry decimal.Decimal

	// Ratchet state. For a long the stop level is non-decreasing over the
	// position's lifetime; for a short, non-increasing.
	StopLevel decimal.Decimal
	HasStop   bool

	OpenedBar int
	BarsHeld  int
}

// Side returns the position direction.
func (p *Position) Side() PositionSide {
	switch {
	case p.Qty.IsPositive():
		return Long
	case p.Qty.IsNegative():
		return Short
	}
	return Flat
}

// Ratchet combines a proposed protective-stop level with the current one.
// The result only ever moves in the position's favor: max for a long,
// min for a short. A proposal that would loosen the stop is discarded.
func (p *Position) Ratchet(proposed decimal.Decimal) decimal.Decimal {
	if !p.HasStop {
		return proposed
	}
	if p.Side() == Short {
		return decimal.Min(p.StopLevel, proposed)
	}
	return decimal.Max(p.StopLevel, proposed)
}

// SetStop records the effective stop level after ratcheting.
func (p *Position) SetStop(proposed decimal.Decimal) {
	p.StopLevel = p.Ratchet(proposed)
	p.HasStop = true
}

// FillOutcome describes how a fill changed a position.
type FillOutcome struct {
	ClosedQty  decimal.Decimal
	Realized   decimal.Decimal
	EntryPrice decimal.Decimal
	EntryBar   int
	NowFlat    bool
}

// ApplyFill mutates the position for an executed fill and returns the
// realized component. A fill that crosses through flat realizes the closed
// lot and opens the remainder at the fill price.
func (p *Position) ApplyFill(side Side, qty, price decimal.Decimal, bar int) FillOutcome {
	delta := qty
	if side == SideSell {
		delta = qty.Neg()
	}
	prev := p.Qty

	// Opening or adding: same direction, weighted average entry.
	if prev.IsZero() || prev.Sign() == delta.Sign() {
		if prev.IsZero() {
			p.AvgEntry = price
			p.OpenedBar = bar
			p.BarsHeld = 0
			p.HasStop = false
			p.StopLevel = decimal.Zero
		} else {
			notional := p.AvgEntry.Mul(prev.Abs()).Add(price.Mul(qty))
			p.AvgEntry = notional.Div(prev.Abs().Add(qty))
		}
		p.Qty = prev.Add(delta)
		return FillOutcome{EntryPrice: p.AvgEntry, EntryBar: p.OpenedBar}
	}

	// Reducing or reversing.
	closed := decimal.Min(qty, prev.Abs())
	perUnit := price.Sub(p.AvgEntry)
	if prev.IsNegative() {
		perUnit = p.AvgEntry.Sub(price)
	}
	out := FillOutcome{
		ClosedQty:  closed,
		Realized:   perUnit.Mul(closed),
		EntryPrice: p.AvgEntry,
		EntryBar:   p.OpenedBar,
	}

	p.Qty = prev.Add(delta)
	if p.Qty.IsZero() {
		p.AvgEntry = decimal.Zero
		p.HasStop = false
		p.StopLevel = decimal.Zero
		out.NowFlat = true
	} else if p.Qty.Sign() != prev.Sign() {
		// Reversed through flat: remainder is a fresh position.
		p.AvgEntry = price
		p.OpenedBar = bar
		p.BarsHeld = 0
		p.HasStop = false
		p.StopLevel = decimal.Zero
	}
	return out
}
