// Package engine drives the four-phase bar cycle: start-of-bar activation
// and MOO fills, intrabar trigger resolution, MOC fills, then post-bar
// accounting and maintenance. One engine owns one run's state exclusively
// and processes its bars strictly sequentially.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/infra"
	"barsim/internal/ledger"
	"barsim/internal/maintain"
	"barsim/internal/sim"
	"barsim/internal/strategy"
)

// Config wires one run. Policies are passed explicitly at construction;
// there is no process-wide registry to look anything up in.
type Config struct {
	RunID       string
	Symbol      string
	InitialCash decimal.Decimal

	Instrument domain.Instrument
	Rounding   domain.RoundingPolicy

	Sim        sim.Config
	Maintainer maintain.Config
	ATRPeriod  int

	// JitterBps layers deterministic stochastic slippage on top of the
	// configured model, seeded from Seed.
	JitterBps decimal.Decimal
	Seed      uint64

	Policy strategy.Policy // may be nil when intents are fed externally
}

// Result is the full output of one run: an append-only audit trail.
type Result struct {
	RunID       string
	Symbol      string
	Seed        uint64
	Fills       []domain.Fill
	Trades      []domain.Trade
	Equity      []domain.EquityPoint
	Rejects     []domain.RejectedIntent
	FinalEquity decimal.Decimal
}

// Engine is the bar event loop for a single run.
type Engine struct {
	cfg   Config
	led   *ledger.Ledger
	acct  *domain.Account
	sim   *sim.Simulator
	maint *maintain.Maintainer
	atr   *sim.ATR

	bar       int
	prevClose decimal.Decimal
	havePrev  bool

	fills   []domain.Fill
	trades  []domain.Trade
	equity  []domain.EquityPoint
	rejects []domain.RejectedIntent

	metrics *infra.Metrics
}

// New builds an engine. Structurally odd policy pairings are allowed but
// logged, preserving user agency over sweep generation.
func New(cfg Config) (*Engine, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("engine: symbol required")
	}
	if cfg.Rounding == "" {
		cfg.Rounding = domain.RoundNearest
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.JitterBps.IsPositive() {
		base := cfg.Sim.Slippage
		if base == nil {
			base = sim.FixedSlippage{}
		}
		cfg.Sim.Slippage = sim.StochasticJitter{
			Base: base,
			Bps:  cfg.JitterBps,
			Rand: rand.New(rand.NewSource(int64(cfg.Seed))),
		}
	}
	if cfg.Sim.Path == sim.PathBestCase {
		slog.Warn("best-case path policy selected; results are an optimistic upper bound",
			slog.String("run", cfg.RunID))
	}
	if cfg.Sim.Remainder == sim.RemainderCancel && cfg.Sim.ParticipationCap.IsZero() {
		slog.Warn("cancel remainder policy has no effect without a participation cap",
			slog.String("run", cfg.RunID))
	}

	return &Engine{
		cfg:     cfg,
		led:     ledger.New(),
		acct:    domain.NewAccount(cfg.InitialCash),
		sim:     sim.New(cfg.Sim),
		maint:   maintain.New(cfg.Maintainer),
		atr:     sim.NewATR(cfg.ATRPeriod),
		metrics: infra.GlobalMetrics,
	}, nil
}

// Ledger exposes the order ledger for external intent submission.
func (e *Engine) Ledger() *ledger.Ledger { return e.led }

// Account exposes the accounting ledger for inspection.
func (e *Engine) Account() *domain.Account { return e.acct }

// Run processes a bar series to completion. Any ledger or simulator error
// terminates the run; they indicate a logic or configuration defect, not a
// transient fault, and are never retried.
func (e *Engine) Run(bars []domain.Bar) (*Result, error) {
	for _, bar := range bars {
		if err := e.ProcessBar(bar); err != nil {
			e.metrics.RecordError()
			if domain.IsContractViolation(err) {
				slog.Error("run aborted on order contract violation",
					slog.String("run", e.cfg.RunID),
					slog.Int("bar", e.bar),
					slog.Any("error", err))
			}
			return nil, fmt.Errorf("run %s bar %d: %w", e.cfg.RunID, e.bar, err)
		}
	}
	e.metrics.RecordRunCompleted()
	return e.result(), nil
}

// Snapshot returns the audit trail accumulated so far. Used by callers
// that feed bars incrementally instead of through Run.
func (e *Engine) Snapshot() *Result { return e.result() }

func (e *Engine) result() *Result {
	final := e.cfg.InitialCash
	if eq, ok := e.acct.LastEquity(); ok {
		final = eq
	}
	return &Result{
		RunID:       e.cfg.RunID,
		Symbol:      e.cfg.Symbol,
		Seed:        e.cfg.Seed,
		Fills:       e.fills,
		Trades:      e.trades,
		Equity:      e.equity,
		Rejects:     e.rejects,
		FinalEquity: final,
	}
}

// ProcessBar executes the four phases for one bar, in strict order.
// No computation here may read a later bar; everything derives from this
// bar and accumulated state.
func (e *Engine) ProcessBar(bar domain.Bar) error {
	index := e.bar
	e.led.SetBar(index)

	if bar.IsVoid() {
		e.processVoidBar(index, bar)
		e.bar++
		return nil
	}

	ctx := e.sim.NewBarContext(e.cfg.RunID, index, bar, e.prevClose, e.havePrev, e.atr.Value())

	// Phase 1: start-of-bar. Expire, activate, fill market-on-open.
	e.led.ExpireDue(index)
	for _, o := range e.led.PendingTopLevel() {
		if err := e.led.Activate(o.ID); err != nil {
			return err
		}
	}
	fills, err := e.sim.FillOpen(e.led, ctx)
	if err != nil {
		return err
	}
	if err := e.settle(fills); err != nil {
		return err
	}

	// Phase 2: intrabar trigger resolution.
	fills, err = e.sim.FillIntrabar(e.led, ctx)
	if err != nil {
		return err
	}
	if err := e.settle(fills); err != nil {
		return err
	}

	// Phase 3: end-of-bar market-on-close.
	fills, err = e.sim.FillClose(e.led, ctx)
	if err != nil {
		return err
	}
	if err := e.settle(fills); err != nil {
		return err
	}

	// Phase 4: mark, then maintenance intents for the next bar only.
	pos := e.acct.Position(e.cfg.Symbol)
	if pos.Side() != domain.Flat {
		pos.BarsHeld++
	}
	stopID := e.protectiveStopID(pos)
	if stopID != "" && !pos.HasStop {
		if o, err := e.led.Get(stopID); err == nil {
			pos.SetStop(o.StopPrice)
		}
	}

	eq, dd := e.acct.MarkToMarket(map[string]decimal.Decimal{e.cfg.Symbol: bar.Close})
	e.equity = append(e.equity, domain.EquityPoint{
		RunID:    e.cfg.RunID,
		Bar:      index,
		Time:     bar.Time,
		Cash:     e.acct.Cash,
		Equity:   eq,
		Drawdown: dd,
	})
	e.atr.Update(bar)

	intents := e.maint.OnBarClose(bar, pos, e.atr.Value(), stopID)
	if e.cfg.Policy != nil {
		intents = append(intents, e.cfg.Policy.OnBarClose(bar, pos)...)
	}
	if err := e.applyIntents(index, intents); err != nil {
		return err
	}

	e.prevClose = bar.Close
	e.havePrev = true
	e.metrics.RecordBar(false)
	e.bar++
	return nil
}

// processVoidBar skips phases 1-3, carries the previous mark forward and
// invokes the maintainer for bookkeeping only.
func (e *Engine) processVoidBar(index int, bar domain.Bar) {
	pos := e.acct.Position(e.cfg.Symbol)
	if pos.Side() != domain.Flat {
		pos.BarsHeld++
	}
	e.maint.OnVoidBar(pos)

	eq, ok := e.acct.LastEquity()
	if !ok {
		eq = e.cfg.InitialCash
	}
	e.equity = append(e.equity, domain.EquityPoint{
		RunID:    e.cfg.RunID,
		Bar:      index,
		Time:     bar.Time,
		Cash:     e.acct.Cash,
		Equity:   eq,
		Drawdown: e.acct.Drawdown(),
	})
	e.metrics.RecordBar(true)
}

// settle applies fills to the accounting ledger and emits closed-lot
// trades. The order ledger was already updated by the simulator.
func (e *Engine) settle(fills []domain.Fill) error {
	for _, f := range fills {
		e.fills = append(e.fills, f)
		out := e.acct.ApplyFill(f)

		o, err := e.led.Get(f.OrderID)
		if err != nil {
			return err
		}
		e.metrics.RecordFill(f.WasGapped, o.State == domain.OrderStatePartiallyFilled)

		if out.ClosedQty.IsPositive() {
			e.trades = append(e.trades, domain.Trade{
				RunID:      f.RunID,
				Symbol:     f.Symbol,
				Side:       f.Side.Opposite(), // side of the closed lot
				Qty:        out.ClosedQty,
				EntryPrice: out.EntryPrice,
				ExitPrice:  f.Price,
				EntryBar:   out.EntryBar,
				ExitBar:    f.Bar,
				Realized:   out.Realized,
				Commission: f.Commission,
				ExitOrder:  f.OrderID,
				CreatedAt:  f.CreatedAt,
			})
			e.metrics.RecordTradeClosed()
		}
		if out.NowFlat {
			if err := e.cancelProtective(f.Symbol); err != nil {
				return err
			}
		}
	}
	return nil
}

// cancelProtective cancels leftover bracket children and OCO legs once the
// position they protect is gone, so a stale stop cannot fire later.
func (e *Engine) cancelProtective(symbol string) error {
	for _, o := range e.led.OpenOrders() {
		if o.Symbol != symbol {
			continue
		}
		if o.ParentID != "" || o.OCOID != "" {
			if err := e.led.Cancel(o.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// protectiveStopID returns the live protective stop for the position, "" if
// none: the earliest-submitted open trigger order on the offsetting side.
func (e *Engine) protectiveStopID(pos *domain.Position) string {
	if pos.Side() == domain.Flat {
		return ""
	}
	offside := domain.SideSell
	if pos.Side() == domain.Short {
		offside = domain.SideBuy
	}
	for _, o := range e.led.OpenOrders() {
		if o.Symbol == pos.Symbol && o.Side == offside && o.HasTrigger() {
			return o.ID
		}
	}
	return ""
}

// applyIntents runs at the post-bar boundary: the only point where
// cancel-replace is permitted, so there is never a bar in which neither
// the old nor the new protective order is active.
func (e *Engine) applyIntents(index int, intents []domain.OrderIntent) error {
	for _, it := range intents {
		switch it.Kind {
		case domain.IntentSubmit:
			if err := e.submitIntent(index, it); err != nil {
				return err
			}
		case domain.IntentCancel:
			if err := e.led.Cancel(it.TargetID); err != nil {
				return err
			}
			// Cancelling one leg of a protective pair dissolves the pair.
			if o, err := e.led.Get(it.TargetID); err == nil && o.OCOID != "" {
				if sib, err := e.led.Get(o.OCOID); err == nil && sib.IsOpen() {
					if err := e.led.Cancel(sib.ID); err != nil {
						return err
					}
				}
			}
		case domain.IntentCancelReplace:
			spec, ok, err := e.roundSpec(index, it, it.Spec)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			spec = e.ratchetProtective(spec)
			if _, err := e.led.CancelReplace(it.TargetID, spec); err != nil {
				return err
			}
			e.metrics.RecordOrderSubmitted()
		default:
			e.reject(index, it, domain.RejectBadIntent, fmt.Sprintf("unknown intent kind %q", it.Kind))
		}
	}
	return nil
}

func (e *Engine) submitIntent(index int, it domain.OrderIntent) error {
	spec, ok, err := e.roundSpec(index, it, it.Spec)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var stop, target *domain.OrderSpec
	if it.StopChild != nil {
		s, ok, err := e.roundSpec(index, it, *it.StopChild)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		stop = &s
	}
	if it.TargetChild != nil {
		t, ok, err := e.roundSpec(index, it, *it.TargetChild)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		target = &t
	}

	if stop != nil || target != nil {
		_, err = e.led.SubmitBracket(spec, stop, target)
	} else {
		_, err = e.led.Submit(spec)
	}
	if err != nil {
		e.reject(index, it, domain.RejectLedger, err.Error())
		return nil
	}
	e.metrics.RecordOrderSubmitted()
	return nil
}

// roundSpec snaps prices and quantities to the instrument grid. A grid
// violation under the reject policy is a modeled outcome, not a run fault:
// the intent becomes a rejected-intent record and is dropped, as does a
// quantity that rounds to nothing under the rounding policies.
func (e *Engine) roundSpec(index int, it domain.OrderIntent, spec domain.OrderSpec) (domain.OrderSpec, bool, error) {
	inst := e.cfg.Instrument
	var err error

	if spec.StopPrice.IsPositive() {
		spec.StopPrice, err = inst.RoundPrice(spec.StopPrice, e.cfg.Rounding)
		if err != nil {
			return e.rejectRounding(index, it, spec, err)
		}
	}
	if spec.LimitPrice.IsPositive() {
		spec.LimitPrice, err = inst.RoundLimitPrice(spec.Side, spec.LimitPrice, e.cfg.Rounding)
		if err != nil {
			return e.rejectRounding(index, it, spec, err)
		}
	}
	spec.Qty, err = inst.RoundQty(spec.Qty, e.cfg.Rounding)
	if err != nil {
		return e.rejectRounding(index, it, spec, err)
	}
	if !spec.Qty.IsPositive() {
		e.reject(index, it, domain.RejectLotViolation, "quantity rounds to zero")
		return spec, false, nil
	}
	return spec, true, nil
}

// rejectRounding maps an instrument-grid error onto its reject category.
// Anything other than a RoundingError stays fatal.
func (e *Engine) rejectRounding(index int, it domain.OrderIntent, spec domain.OrderSpec, err error) (domain.OrderSpec, bool, error) {
	var re *domain.RoundingError
	if !errors.As(err, &re) {
		return spec, false, err
	}
	reason := domain.RejectTickViolation
	if re.Field == "qty" {
		reason = domain.RejectLotViolation
	}
	e.reject(index, it, reason, err.Error())
	return spec, false, nil
}

// ratchetProtective clamps a replacement protective stop so it can only
// move in the position's favor, regardless of who proposed it.
func (e *Engine) ratchetProtective(spec domain.OrderSpec) domain.OrderSpec {
	if spec.Type != domain.OrderTypeStop && spec.Type != domain.OrderTypeStopLimit {
		return spec
	}
	pos := e.acct.Position(spec.Symbol)
	long := pos.Side() == domain.Long && spec.Side == domain.SideSell
	short := pos.Side() == domain.Short && spec.Side == domain.SideBuy
	if !long && !short {
		return spec
	}
	spec.StopPrice = pos.Ratchet(spec.StopPrice)
	pos.SetStop(spec.StopPrice)
	return spec
}

func (e *Engine) reject(bar int, it domain.OrderIntent, reason domain.RejectReason, detail string) {
	e.rejects = append(e.rejects, domain.RejectedIntent{
		Bar: bar, Intent: it, Reason: reason, Detail: detail,
	})
	e.metrics.RecordIntentRejected()
	slog.Debug("intent rejected",
		slog.String("run", e.cfg.RunID),
		slog.Int("bar", bar),
		slog.String("reason", string(reason)),
		slog.String("detail", detail))
}
