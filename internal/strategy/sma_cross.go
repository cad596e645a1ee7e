package strategy

import (
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// SMACrossPolicy is a simple SMA crossover entry policy used to exercise
// the intent pipeline end to end. It is stateful and deterministic.
// Uses a ring buffer so the per-bar update allocates nothing.
type SMACrossPolicy struct {
	symbol      string
	shortPeriod int
	longPeriod  int
	qty         decimal.Decimal
	stopPct     decimal.Decimal // protective stop distance, fraction of close
	targetPct   decimal.Decimal // take-profit distance, fraction of close

	// State (ring buffer over closes)
	closes []decimal.Decimal
	head   int
	count  int
	sum    decimal.Decimal // running sum for the long period

	prevShortSMA decimal.Decimal
	prevLongSMA  decimal.Decimal
	warm         bool
}

// NewSMACrossPolicy creates a new instance.
func NewSMACrossPolicy(symbol string, shortPeriod, longPeriod int, qty, stopPct, targetPct decimal.Decimal) *SMACrossPolicy {
	if shortPeriod >= longPeriod {
		panic("SMACrossPolicy: shortPeriod must be less than longPeriod")
	}
	return &SMACrossPolicy{
		symbol:      symbol,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		qty:         qty,
		stopPct:     stopPct,
		targetPct:   targetPct,
		closes:      make([]decimal.Decimal, longPeriod),
		sum:         decimal.Zero,
	}
}

// OnBarClose updates the SMAs and emits bracket entries on a golden cross,
// market exits on a dead cross.
func (p *SMACrossPolicy) OnBarClose(bar domain.Bar, pos *domain.Position) []domain.OrderIntent {
	if bar.Symbol != p.symbol {
		return nil
	}

	// Update ring buffer; when full, drop the oldest close from the sum.
	if p.count == p.longPeriod {
		p.sum = p.sum.Sub(p.closes[p.head])
	}
	p.closes[p.head] = bar.Close
	p.sum = p.sum.Add(bar.Close)
	p.head = (p.head + 1) % p.longPeriod
	if p.count < p.longPeriod {
		p.count++
	}
	if p.count < p.longPeriod {
		return nil
	}

	currLong := p.sum.Div(decimal.NewFromInt(int64(p.longPeriod)))
	currShort := p.shortSMA()

	var intents []domain.OrderIntent
	if p.warm {
		goldenCross := p.prevShortSMA.LessThanOrEqual(p.prevLongSMA) && currShort.GreaterThan(currLong)
		deadCross := p.prevShortSMA.GreaterThanOrEqual(p.prevLongSMA) && currShort.LessThan(currLong)

		if goldenCross && pos.Side() == domain.Flat {
			stop := bar.Close.Mul(decimal.NewFromInt(1).Sub(p.stopPct))
			target := bar.Close.Mul(decimal.NewFromInt(1).Add(p.targetPct))
			intents = append(intents, domain.OrderIntent{
				Kind: domain.IntentSubmit,
				Spec: domain.OrderSpec{
					Symbol: p.symbol,
					Side:   domain.SideBuy,
					Type:   domain.OrderTypeMarket,
					Timing: domain.TimingOpen,
					Qty:    p.qty,
				},
				StopChild: &domain.OrderSpec{
					Symbol:    p.symbol,
					Side:      domain.SideSell,
					Type:      domain.OrderTypeStop,
					Qty:       p.qty,
					StopPrice: stop,
				},
				TargetChild: &domain.OrderSpec{
					Symbol:     p.symbol,
					Side:       domain.SideSell,
					Type:       domain.OrderTypeLimit,
					Qty:        p.qty,
					LimitPrice: target,
				},
			})
		}

		if deadCross && pos.Side() == domain.Long {
			intents = append(intents, domain.OrderIntent{
				Kind: domain.IntentSubmit,
				Spec: domain.OrderSpec{
					Symbol: p.symbol,
					Side:   domain.SideSell,
					Type:   domain.OrderTypeMarket,
					Timing: domain.TimingOpen,
					Qty:    pos.Qty.Abs(),
				},
			})
		}
	}

	p.prevShortSMA = currShort
	p.prevLongSMA = currLong
	p.warm = true
	return intents
}

// shortSMA walks the ring buffer backwards from the latest close.
func (p *SMACrossPolicy) shortSMA() decimal.Decimal {
	sum := decimal.Zero
	idx := p.head
	for i := 0; i < p.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = p.longPeriod - 1
		}
		sum = sum.Add(p.closes[idx])
	}
	return sum.Div(decimal.NewFromInt(int64(p.shortPeriod)))
}
