// Package maintain emits next-bar order adjustments for open positions:
// trailing-stop cancel-replace under the ratchet invariant and time-based
// forced exits. It never fills anything and never mutates position state;
// everything it decides flows back through the order ledger as intents.
package maintain

import (
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// Config tunes the maintainer. Zero values disable the corresponding rule.
type Config struct {
	TrailMult   decimal.Decimal // protective stop trails the extreme by TrailMult * ATR
	MaxHoldBars int             // force-exit after this many bars in a position
}

// Maintainer holds the per-position reference state. One maintainer serves
// one run; it resets itself whenever the position goes flat.
type Maintainer struct {
	cfg Config

	// refExtreme is a snapshot captured the bar it is set, never recomputed
	// retroactively, so a pullback cannot drag the exit reference lower.
	refExtreme decimal.Decimal
	refSet     bool

	exitEmitted  bool
	deferredExit bool
}

// New creates a maintainer.
func New(cfg Config) *Maintainer {
	return &Maintainer{cfg: cfg}
}

func (m *Maintainer) reset() {
	m.refExtreme = decimal.Zero
	m.refSet = false
	m.exitEmitted = false
	m.deferredExit = false
}

// OnVoidBar performs the non-price bookkeeping of a void bar. A time exit
// whose threshold is crossed here would be unfillable, so it is only
// flagged and emitted on the next bar with valid prices.
func (m *Maintainer) OnVoidBar(pos *domain.Position) {
	if pos == nil || pos.Side() == domain.Flat {
		m.reset()
		return
	}
	if m.cfg.MaxHoldBars > 0 && pos.BarsHeld >= m.cfg.MaxHoldBars && !m.exitEmitted {
		m.deferredExit = true
	}
}

// OnBarClose runs once per open position, strictly after accounting has
// marked the bar. stopID names the live protective stop order, "" if none.
// Every returned intent takes effect starting the next bar.
func (m *Maintainer) OnBarClose(bar domain.Bar, pos *domain.Position, atr decimal.Decimal, stopID string) []domain.OrderIntent {
	if pos == nil || pos.Side() == domain.Flat {
		m.reset()
		return nil
	}

	if m.timeExitDue(pos) {
		return m.emitTimeExit(pos, stopID)
	}
	if m.exitEmitted {
		return nil
	}
	return m.trail(bar, pos, atr, stopID)
}

func (m *Maintainer) timeExitDue(pos *domain.Position) bool {
	if m.exitEmitted {
		return false
	}
	if m.deferredExit {
		return true
	}
	return m.cfg.MaxHoldBars > 0 && pos.BarsHeld >= m.cfg.MaxHoldBars
}

func (m *Maintainer) emitTimeExit(pos *domain.Position, stopID string) []domain.OrderIntent {
	m.exitEmitted = true
	m.deferredExit = false

	var intents []domain.OrderIntent
	if stopID != "" {
		intents = append(intents, domain.OrderIntent{Kind: domain.IntentCancel, TargetID: stopID})
	}
	side := domain.SideSell
	if pos.Side() == domain.Short {
		side = domain.SideBuy
	}
	intents = append(intents, domain.OrderIntent{
		Kind: domain.IntentSubmit,
		Spec: domain.OrderSpec{
			Symbol: pos.Symbol,
			Side:   side,
			Type:   domain.OrderTypeMarket,
			Timing: domain.TimingOpen,
			Qty:    pos.Qty.Abs(),
		},
	})
	return intents
}

func (m *Maintainer) trail(bar domain.Bar, pos *domain.Position, atr decimal.Decimal, stopID string) []domain.OrderIntent {
	if !m.cfg.TrailMult.IsPositive() || !atr.IsPositive() || stopID == "" {
		return nil
	}

	long := pos.Side() == domain.Long
	if !m.refSet || (long && bar.Close.GreaterThan(m.refExtreme)) || (!long && bar.Close.LessThan(m.refExtreme)) {
		m.refExtreme = bar.Close
		m.refSet = true
	}

	dist := m.cfg.TrailMult.Mul(atr)
	proposed := m.refExtreme.Sub(dist)
	if !long {
		proposed = m.refExtreme.Add(dist)
	}

	// Ratchet: a volatility expansion implying a looser stop is rejected
	// outright; only a strictly tighter level is worth a cancel-replace.
	effective := pos.Ratchet(proposed)
	if pos.HasStop {
		if long && !effective.GreaterThan(pos.StopLevel) {
			return nil
		}
		if !long && !effective.LessThan(pos.StopLevel) {
			return nil
		}
	}

	side := domain.SideSell
	if !long {
		side = domain.SideBuy
	}
	return []domain.OrderIntent{{
		Kind:     domain.IntentCancelReplace,
		TargetID: stopID,
		Spec: domain.OrderSpec{
			Symbol:    pos.Symbol,
			Side:      side,
			Type:      domain.OrderTypeStop,
			Qty:       pos.Qty.Abs(),
			StopPrice: effective,
		},
	}}
}
