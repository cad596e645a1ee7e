// Package sim turns eligible orders into fills, one bar at a time. It owns
// path-policy ambiguity resolution, gap handling, slippage and the
// participation-capped liquidity budget.
package sim

import (
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/ledger"
)

// Config selects the pluggable policies of one simulator instance.
// No process-wide registry: construction is the only configuration point.
type Config struct {
	Path             PathPolicy
	Slippage         SlippageModel
	Commission       CommissionModel
	ParticipationCap decimal.Decimal
	Remainder        RemainderPolicy
	ImprovementBps   decimal.Decimal // passive-limit price improvement, 0 disables
}

// Simulator fills orders against bars.
type Simulator struct {
	cfg Config
}

// New creates a simulator.
func New(cfg Config) *Simulator {
	if cfg.Slippage == nil {
		cfg.Slippage = FixedSlippage{}
	}
	if cfg.Path == "" {
		cfg.Path = PathWorstCase
	}
	if cfg.Remainder == "" {
		cfg.Remainder = RemainderCarry
	}
	return &Simulator{cfg: cfg}
}

// BarContext carries the per-bar inputs shared by the three fill phases.
// The allocator is created once per bar so all phases draw from one budget.
type BarContext struct {
	RunID      string
	Index      int
	Bar        domain.Bar
	PrevClose  decimal.Decimal
	HavePrev   bool
	Volatility decimal.Decimal
	Alloc      *Allocator
}

// NewBarContext builds the context, including the liquidity budget.
func (s *Simulator) NewBarContext(runID string, index int, bar domain.Bar, prevClose decimal.Decimal, havePrev bool, vol decimal.Decimal) *BarContext {
	return &BarContext{
		RunID:      runID,
		Index:      index,
		Bar:        bar,
		PrevClose:  prevClose,
		HavePrev:   havePrev,
		Volatility: vol,
		Alloc:      NewAllocator(s.cfg.ParticipationCap, bar.Volume),
	}
}

// FillOpen fills active market-on-open orders at the bar's open price.
// Bracket children of a parent filled here activate before the intrabar
// phase sees the bar.
func (s *Simulator) FillOpen(led *ledger.Ledger, ctx *BarContext) ([]domain.Fill, error) {
	return s.fillMarketPhase(led, ctx, domain.TimingOpen, ctx.Bar.Open)
}

// FillClose fills active market-on-close orders at the bar's close price.
func (s *Simulator) FillClose(led *ledger.Ledger, ctx *BarContext) ([]domain.Fill, error) {
	return s.fillMarketPhase(led, ctx, domain.TimingClose, ctx.Bar.Close)
}

func (s *Simulator) fillMarketPhase(led *ledger.Ledger, ctx *BarContext, timing domain.MarketTiming, price decimal.Decimal) ([]domain.Fill, error) {
	var fills []domain.Fill
	for _, o := range led.OpenOrders() {
		if o.Type != domain.OrderTypeMarket || o.Timing != timing {
			continue
		}
		f, err := s.fill(led, o, price, false, false, ctx)
		if err != nil {
			return fills, err
		}
		if f == nil {
			continue
		}
		fills = append(fills, *f)
		led.ActivateChildren(o.ID)
	}
	return fills, nil
}

// FillIntrabar resolves stop and limit activity within [low, high]. One
// candidate is processed per pass so a fill's side effects (OCO cancel,
// bracket-child activation) are visible before the next winner is chosen.
func (s *Simulator) FillIntrabar(led *ledger.Ledger, ctx *BarContext) ([]domain.Fill, error) {
	var fills []domain.Fill
	done := make(map[string]bool)

	for {
		var candidates []*domain.Order
		for _, o := range led.OpenOrders() {
			if done[o.ID] || o.Type == domain.OrderTypeMarket {
				continue
			}
			if s.touchable(o, ctx) {
				candidates = append(candidates, o)
			}
		}
		if len(candidates) == 0 {
			return fills, nil
		}
		s.cfg.Path.sortCandidates(candidates)

		o := candidates[0]
		done[o.ID] = true
		f, filled, err := s.processIntrabar(led, o, ctx)
		if err != nil {
			return fills, err
		}
		if f != nil {
			fills = append(fills, *f)
		}
		if filled {
			led.ActivateChildren(o.ID)
		}
	}
}

// touchable reports whether the bar's range could plausibly execute the order.
func (s *Simulator) touchable(o *domain.Order, ctx *BarContext) bool {
	switch o.Type {
	case domain.OrderTypeStop:
		if o.State == domain.OrderStateActive {
			_, _, ok := stopTrigger(o, ctx)
			return ok
		}
		return true // carried triggered/partial stop is marketable at open
	case domain.OrderTypeLimit:
		_, ok := limitTouch(o, ctx)
		return ok
	case domain.OrderTypeStopLimit:
		if o.State == domain.OrderStateActive {
			_, _, ok := stopTrigger(o, ctx)
			return ok
		}
		_, ok := limitTouch(o, ctx)
		return ok
	}
	return false
}

// stopTrigger decides whether a stop fires this bar and at what price.
// A trigger lying strictly between the previous close and the open means
// the market gapped through it: the fill happens at the open, always the
// worse outcome for the holder, and is flagged as gapped.
func stopTrigger(o *domain.Order, ctx *BarContext) (price decimal.Decimal, gapped bool, ok bool) {
	b := ctx.Bar
	if o.Side == domain.SideBuy {
		if ctx.HavePrev && ctx.PrevClose.LessThan(o.StopPrice) && o.StopPrice.LessThan(b.Open) {
			return b.Open, true, true
		}
		if b.Open.GreaterThanOrEqual(o.StopPrice) {
			return b.Open, false, true
		}
		if b.High.GreaterThanOrEqual(o.StopPrice) {
			return o.StopPrice, false, true
		}
		return decimal.Zero, false, false
	}
	if ctx.HavePrev && ctx.PrevClose.GreaterThan(o.StopPrice) && o.StopPrice.GreaterThan(b.Open) {
		return b.Open, true, true
	}
	if b.Open.LessThanOrEqual(o.StopPrice) {
		return b.Open, false, true
	}
	if b.Low.LessThanOrEqual(o.StopPrice) {
		return o.StopPrice, false, true
	}
	return decimal.Zero, false, false
}

// limitTouch decides whether a resting limit is reachable this bar and at
// what price. Opening beyond the limit fills at the open (price
// improvement comes for free on gaps in the holder's favor).
func limitTouch(o *domain.Order, ctx *BarContext) (decimal.Decimal, bool) {
	b := ctx.Bar
	if o.Side == domain.SideBuy {
		if b.Low.LessThanOrEqual(o.LimitPrice) {
			return decimal.Min(b.Open, o.LimitPrice), true
		}
		return decimal.Zero, false
	}
	if b.High.GreaterThanOrEqual(o.LimitPrice) {
		return decimal.Max(b.Open, o.LimitPrice), true
	}
	return decimal.Zero, false
}

func (s *Simulator) processIntrabar(led *ledger.Ledger, o *domain.Order, ctx *BarContext) (*domain.Fill, bool, error) {
	switch o.Type {
	case domain.OrderTypeStop:
		if o.State == domain.OrderStateActive {
			price, gapped, ok := stopTrigger(o, ctx)
			if !ok {
				return nil, false, nil
			}
			if err := led.Trigger(o.ID); err != nil {
				return nil, false, err
			}
			return s.finishFill(led, o, price, gapped, false, ctx)
		}
		// Carried from an earlier bar: a triggered stop is a market order now.
		return s.finishFill(led, o, ctx.Bar.Open, false, false, ctx)

	case domain.OrderTypeLimit:
		price, ok := limitTouch(o, ctx)
		if !ok {
			return nil, false, nil
		}
		return s.finishFill(led, o, price, false, true, ctx)

	case domain.OrderTypeStopLimit:
		if o.State == domain.OrderStateActive {
			trig, gapped, ok := stopTrigger(o, ctx)
			if !ok {
				return nil, false, nil
			}
			if err := led.Trigger(o.ID); err != nil {
				return nil, false, err
			}
			if withinLimit(o, trig) {
				return s.finishFill(led, o, trig, gapped, false, ctx)
			}
			// Gapped past the limit: only a retrace to the limit fills.
			if price, ok := limitTouch(o, ctx); ok {
				return s.finishFill(led, o, price, false, true, ctx)
			}
			return nil, false, nil // stays TRIGGERED
		}
		price, ok := limitTouch(o, ctx)
		if !ok {
			return nil, false, nil
		}
		return s.finishFill(led, o, price, false, true, ctx)
	}
	return nil, false, nil
}

// withinLimit reports whether an execution price respects the limit leg.
func withinLimit(o *domain.Order, price decimal.Decimal) bool {
	if o.Side == domain.SideBuy {
		return price.LessThanOrEqual(o.LimitPrice)
	}
	return price.GreaterThanOrEqual(o.LimitPrice)
}

func (s *Simulator) finishFill(led *ledger.Ledger, o *domain.Order, price decimal.Decimal, gapped, passive bool, ctx *BarContext) (*domain.Fill, bool, error) {
	f, err := s.fill(led, o, price, gapped, passive, ctx)
	if err != nil {
		return nil, false, err
	}
	return f, f != nil, nil
}

// fill executes one order against the bar's remaining liquidity budget and
// the slippage model, then applies the quantity to the ledger. Expected
// shortfalls (partial liquidity) are modeled outcomes, never errors.
func (s *Simulator) fill(led *ledger.Ledger, o *domain.Order, price decimal.Decimal, gapped, passive bool, ctx *BarContext) (*domain.Fill, error) {
	want := o.Remaining()
	granted := ctx.Alloc.Take(want)
	if !granted.IsPositive() {
		return nil, s.applyRemainder(led, o)
	}

	px := price
	slip := decimal.Zero
	if passive {
		if s.cfg.ImprovementBps.IsPositive() {
			imp := price.Mul(s.cfg.ImprovementBps).Div(tenK)
			if o.Side == domain.SideBuy {
				px = px.Sub(imp)
			} else {
				px = px.Add(imp)
			}
			slip = imp.Neg()
		}
	} else {
		slip = s.cfg.Slippage.Slip(price, ctx.Volatility, ctx.Alloc.Participation(granted))
		if gapped {
			slip = slip.Mul(two)
		}
		if o.Side == domain.SideBuy {
			px = px.Add(slip)
		} else {
			px = px.Sub(slip)
		}
	}
	comm := s.cfg.Commission.Cost(px, granted)

	if err := led.ApplyFill(o.ID, granted); err != nil {
		return nil, err
	}
	if granted.LessThan(want) {
		if err := s.applyRemainder(led, o); err != nil {
			return nil, err
		}
	}

	return &domain.Fill{
		RunID:      ctx.RunID,
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        granted,
		Price:      px,
		Bar:        ctx.Index,
		WasGapped:  gapped,
		Slippage:   slip,
		Commission: comm,
		CreatedAt:  ctx.Bar.Time,
	}, nil
}

// applyRemainder handles quantity the liquidity budget left unfilled.
func (s *Simulator) applyRemainder(led *ledger.Ledger, o *domain.Order) error {
	switch s.cfg.Remainder {
	case RemainderCancel:
		if o.IsOpen() {
			return led.Cancel(o.ID)
		}
	case RemainderAccept:
		if o.State == domain.OrderStatePartiallyFilled {
			return led.Finalize(o.ID)
		}
		if o.IsOpen() {
			return led.Cancel(o.ID)
		}
	}
	return nil // carry: keep working next bar
}
