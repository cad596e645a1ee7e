package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundingPolicy selects how raw prices and quantities are snapped to the
// instrument grid before entering the ledger.
type RoundingPolicy string

const (
	RoundReject  RoundingPolicy = "REJECT"
	RoundNearest RoundingPolicy = "NEAREST"
	RoundDown    RoundingPolicy = "DOWN"
	RoundUp      RoundingPolicy = "UP"
)

// ParseRoundingPolicy converts a config string to a RoundingPolicy.
func ParseRoundingPolicy(s string) (RoundingPolicy, error) {
	switch RoundingPolicy(s) {
	case RoundReject, RoundNearest, RoundDown, RoundUp:
		return RoundingPolicy(s), nil
	}
	return "", fmt.Errorf("unknown rounding policy %q", s)
}

// Instrument carries per-symbol trading metadata.
type Instrument struct {
	Symbol   string
	TickSize decimal.Decimal
	LotSize  decimal.Decimal
}

func snap(v, step decimal.Decimal, policy RoundingPolicy) decimal.Decimal {
	q := v.Div(step)
	switch policy {
	case RoundDown:
		q = q.Floor()
	case RoundUp:
		q = q.Ceil()
	default:
		q = q.Round(0)
	}
	return q.Mul(step)
}

// RoundPrice validates or snaps a price according to the policy.
func (i Instrument) RoundPrice(p decimal.Decimal, policy RoundingPolicy) (decimal.Decimal, error) {
	if i.TickSize.IsZero() {
		return p, nil
	}
	if policy == RoundReject {
		if !p.Mod(i.TickSize).IsZero() {
			return decimal.Zero, &RoundingError{Symbol: i.Symbol, Field: "price", Value: p, Step: i.TickSize}
		}
		return p, nil
	}
	return snap(p, i.TickSize, policy), nil
}

// RoundLimitPrice snaps a limit price with the directional convention:
// buy limits round down, sell limits round up, so rounding never makes a
// resting limit more aggressive than requested.
func (i Instrument) RoundLimitPrice(side Side, p decimal.Decimal, policy RoundingPolicy) (decimal.Decimal, error) {
	if policy == RoundReject {
		return i.RoundPrice(p, policy)
	}
	if side == SideBuy {
		return i.RoundPrice(p, RoundDown)
	}
	return i.RoundPrice(p, RoundUp)
}

// RoundQty validates or snaps a quantity to the lot grid. Quantities never
// round up: a caller asking for less than a lot gets zero, not a full lot.
func (i Instrument) RoundQty(q decimal.Decimal, policy RoundingPolicy) (decimal.Decimal, error) {
	if i.LotSize.IsZero() {
		return q, nil
	}
	if policy == RoundReject {
		if !q.Mod(i.LotSize).IsZero() {
			return decimal.Zero, &RoundingError{Symbol: i.Symbol, Field: "qty", Value: q, Step: i.LotSize}
		}
		return q, nil
	}
	return snap(q, i.LotSize, RoundDown), nil
}
