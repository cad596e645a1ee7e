package sim

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
)

// SlippageModel prices the per-unit cost of an aggressive fill. refPrice is
// the raw fill price, volatility the current range measure (ATR), and
// participation the fraction of the bar's volume this fill consumes.
// Resting limit fills never pass through a slippage model.
type SlippageModel interface {
	Slip(refPrice, volatility, participation decimal.Decimal) decimal.Decimal
}

var (
	one        = decimal.NewFromInt(1)
	two        = decimal.NewFromInt(2)
	tenK       = decimal.NewFromInt(10000)
	defaultImp = decimal.NewFromInt(8)
)

// impactMultiplier scales a base cost by volume participation. The square
// term makes heavy participation materially worse, not linearly worse.
func impactMultiplier(coeff, participation decimal.Decimal) decimal.Decimal {
	if participation.IsZero() || coeff.IsZero() {
		return one
	}
	return one.Add(coeff.Mul(participation).Mul(participation))
}

// FixedSlippage charges an absolute amount plus basis points of the fill
// price, scaled by participation impact.
type FixedSlippage struct {
	Amount decimal.Decimal
	Bps    decimal.Decimal
	Impact decimal.Decimal // participation impact coefficient
}

func (m FixedSlippage) Slip(refPrice, _, participation decimal.Decimal) decimal.Decimal {
	base := m.Amount.Add(refPrice.Mul(m.Bps).Div(tenK))
	return base.Mul(impactMultiplier(m.coeff(), participation))
}

func (m FixedSlippage) coeff() decimal.Decimal {
	if m.Impact.IsZero() {
		return defaultImp
	}
	return m.Impact
}

// VolScaledSlippage charges a fraction of the current volatility measure,
// scaled by participation impact.
type VolScaledSlippage struct {
	Fraction decimal.Decimal // e.g. 0.1 = a tenth of ATR per unit
	Impact   decimal.Decimal
}

func (m VolScaledSlippage) Slip(_, volatility, participation decimal.Decimal) decimal.Decimal {
	coeff := m.Impact
	if coeff.IsZero() {
		coeff = defaultImp
	}
	return volatility.Mul(m.Fraction).Mul(impactMultiplier(coeff, participation))
}

// StochasticJitter layers a bounded random component in basis points on top
// of a base model. The generator must be seeded from the run identity so
// parallel sweeps reproduce bit-identical fills.
type StochasticJitter struct {
	Base SlippageModel
	Bps  decimal.Decimal
	Rand *rand.Rand
}

func (m StochasticJitter) Slip(refPrice, volatility, participation decimal.Decimal) decimal.Decimal {
	s := m.Base.Slip(refPrice, volatility, participation)
	if m.Rand == nil || m.Bps.IsZero() {
		return s
	}
	u := decimal.NewFromFloat(m.Rand.Float64())
	return s.Add(refPrice.Mul(m.Bps).Mul(u).Div(tenK))
}

// BuildSlippage constructs a model from config strings.
func BuildSlippage(model string, amount, bps, fraction, impact decimal.Decimal) (SlippageModel, error) {
	switch model {
	case "fixed":
		return FixedSlippage{Amount: amount, Bps: bps, Impact: impact}, nil
	case "vol_scaled":
		return VolScaledSlippage{Fraction: fraction, Impact: impact}, nil
	case "", "none":
		return FixedSlippage{}, nil
	}
	return nil, fmt.Errorf("unknown slippage model %q", model)
}

// CommissionModel charges a flat amount plus basis points of notional per fill.
type CommissionModel struct {
	PerFill decimal.Decimal
	Bps     decimal.Decimal
}

// Cost returns the commission for a fill.
func (c CommissionModel) Cost(price, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return c.PerFill.Add(price.Mul(qty).Mul(c.Bps).Div(tenK))
}
