// Package ledger owns every order's identity and lifecycle state. Orders are
// held in a flat table keyed by id; bracket and OCO relationships are id
// references resolved on demand.
package ledger

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// Ledger is the order table plus the submission sequence counter that
// drives first-submitted-first-filled liquidity priority. It is owned by a
// single run and is not safe for concurrent use.
type Ledger struct {
	orders map[string]*domain.Order
	seq    uint64
	bar    int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{orders: make(map[string]*domain.Order)}
}

// SetBar records the current bar index, used for error context and
// terminal-state bookkeeping.
func (l *Ledger) SetBar(bar int) { l.bar = bar }

// Get looks up an order by id.
func (l *Ledger) Get(id string) (*domain.Order, error) {
	o, ok := l.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s at bar %d: %w", id, l.bar, domain.ErrUnknownOrder)
	}
	return o, nil
}

func validateSpec(spec domain.OrderSpec) error {
	if spec.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrBadSpec)
	}
	if spec.Side != domain.SideBuy && spec.Side != domain.SideSell {
		return fmt.Errorf("%w: side %q", domain.ErrBadSpec, spec.Side)
	}
	if !spec.Qty.IsPositive() {
		return fmt.Errorf("%w: quantity %s", domain.ErrBadSpec, spec.Qty)
	}
	switch spec.Type {
	case domain.OrderTypeMarket:
		if spec.Timing != domain.TimingOpen && spec.Timing != domain.TimingClose {
			return fmt.Errorf("%w: market order needs OPEN or CLOSE timing", domain.ErrBadSpec)
		}
	case domain.OrderTypeStop:
		if !spec.StopPrice.IsPositive() {
			return fmt.Errorf("%w: stop order needs a stop price", domain.ErrBadSpec)
		}
	case domain.OrderTypeLimit:
		if !spec.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit order needs a limit price", domain.ErrBadSpec)
		}
	case domain.OrderTypeStopLimit:
		if !spec.StopPrice.IsPositive() || !spec.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: stop-limit order needs stop and limit prices", domain.ErrBadSpec)
		}
	default:
		return fmt.Errorf("%w: type %q", domain.ErrBadSpec, spec.Type)
	}
	return nil
}

func (l *Ledger) newOrder(spec domain.OrderSpec) *domain.Order {
	l.seq++
	expiry := domain.NoBar
	if spec.ExpiryBars > 0 {
		expiry = l.bar + spec.ExpiryBars
	}
	o := &domain.Order{
		ID:         uuid.NewString(),
		Symbol:     spec.Symbol,
		Side:       spec.Side,
		Type:       spec.Type,
		Timing:     spec.Timing,
		StopPrice:  spec.StopPrice,
		LimitPrice: spec.LimitPrice,
		Qty:        spec.Qty,
		ReqQty:     spec.Qty,
		State:      domain.OrderStatePending,
		CreatedBar: l.bar,
		ClosedBar:  domain.NoBar,
		ExpiryBar:  expiry,
		SubmitSeq:  l.seq,
	}
	// Market orders are eligible the moment they exist.
	if o.Type == domain.OrderTypeMarket {
		o.State = domain.OrderStateActive
	}
	l.orders[o.ID] = o
	return o
}

// Submit creates a single order. Market orders auto-activate.
func (l *Ledger) Submit(spec domain.OrderSpec) (*domain.Order, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	return l.newOrder(spec), nil
}

// SubmitBracket creates an entry with up to two pending children linked to
// the parent and to each other as OCO siblings. Children activate only
// after the parent fills.
func (l *Ledger) SubmitBracket(entry domain.OrderSpec, stop, target *domain.OrderSpec) (*domain.Order, error) {
	if err := validateSpec(entry); err != nil {
		return nil, err
	}
	for _, c := range []*domain.OrderSpec{stop, target} {
		if c != nil {
			if err := validateSpec(*c); err != nil {
				return nil, err
			}
		}
	}

	parent := l.newOrder(entry)
	var stopOrder, targetOrder *domain.Order
	if stop != nil {
		stopOrder = l.newOrder(*stop)
		stopOrder.State = domain.OrderStatePending
		stopOrder.ParentID = parent.ID
	}
	if target != nil {
		targetOrder = l.newOrder(*target)
		targetOrder.State = domain.OrderStatePending
		targetOrder.ParentID = parent.ID
	}
	if stopOrder != nil && targetOrder != nil {
		stopOrder.OCOID = targetOrder.ID
		targetOrder.OCOID = stopOrder.ID
	}
	return parent, nil
}

func (l *Ledger) transition(o *domain.Order, to domain.OrderState) error {
	allowed := false
	switch to {
	case domain.OrderStateActive:
		allowed = o.State == domain.OrderStatePending
	case domain.OrderStateTriggered:
		allowed = o.State == domain.OrderStateActive && o.HasTrigger()
	case domain.OrderStateCancelled, domain.OrderStateExpired:
		allowed = !o.State.IsTerminal()
	}
	if !allowed {
		return &domain.StateError{OrderID: o.ID, From: o.State, To: to, Bar: l.bar}
	}
	o.State = to
	if to.IsTerminal() {
		o.ClosedBar = l.bar
	}
	return nil
}

// Activate moves a pending order to active.
func (l *Ledger) Activate(id string) error {
	o, err := l.Get(id)
	if err != nil {
		return err
	}
	return l.transition(o, domain.OrderStateActive)
}

// Trigger fires a stop or stop-limit order.
func (l *Ledger) Trigger(id string) error {
	o, err := l.Get(id)
	if err != nil {
		return err
	}
	return l.transition(o, domain.OrderStateTriggered)
}

// Cancel terminates a non-terminal order.
func (l *Ledger) Cancel(id string) error {
	o, err := l.Get(id)
	if err != nil {
		return err
	}
	return l.transition(o, domain.OrderStateCancelled)
}

// Expire terminates a non-terminal order as expired.
func (l *Ledger) Expire(id string) error {
	o, err := l.Get(id)
	if err != nil {
		return err
	}
	return l.transition(o, domain.OrderStateExpired)
}

// ApplyFill applies quantity to a fillable order and, if an OCO sibling
// exists, cancels it in the same operation. No bar may observe the sibling
// active after the first fill lands.
func (l *Ledger) ApplyFill(id string, qty decimal.Decimal) error {
	o, err := l.Get(id)
	if err != nil {
		return err
	}
	switch o.State {
	case domain.OrderStateActive, domain.OrderStateTriggered, domain.OrderStatePartiallyFilled:
	default:
		return &domain.StateError{OrderID: o.ID, From: o.State, To: domain.OrderStateFilled, Bar: l.bar}
	}
	if !qty.IsPositive() || qty.GreaterThan(o.Remaining()) {
		return &domain.OverfillError{OrderID: o.ID, Remaining: o.Remaining(), Attempted: qty, Bar: l.bar}
	}

	o.FilledQty = o.FilledQty.Add(qty)
	if o.FilledQty.Equal(o.Qty) {
		o.State = domain.OrderStateFilled
		o.ClosedBar = l.bar
	} else {
		o.State = domain.OrderStatePartiallyFilled
	}

	if o.OCOID != "" {
		if sib, ok := l.orders[o.OCOID]; ok && !sib.State.IsTerminal() {
			sib.State = domain.OrderStateCancelled
			sib.ClosedBar = l.bar
		}
	}
	return nil
}

// Finalize closes a partially filled order as filled-as-is, the
// accept-partial remainder policy outcome.
func (l *Ledger) Finalize(id string) error {
	o, err := l.Get(id)
	if err != nil {
		return err
	}
	if o.State != domain.OrderStatePartiallyFilled {
		return &domain.StateError{OrderID: o.ID, From: o.State, To: domain.OrderStateFilled, Bar: l.bar}
	}
	o.State = domain.OrderStateFilled
	o.ClosedBar = l.bar
	return nil
}

// CancelReplace atomically cancels an order and submits its replacement.
// Permitted only at the post-bar boundary; the engine enforces the timing,
// the ledger enforces atomicity: either both steps happen or neither.
func (l *Ledger) CancelReplace(oldID string, spec domain.OrderSpec) (*domain.Order, error) {
	old, err := l.Get(oldID)
	if err != nil {
		return nil, err
	}
	if old.State.IsTerminal() {
		return nil, &domain.StateError{OrderID: old.ID, From: old.State, To: domain.OrderStateCancelled, Bar: l.bar}
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	wasPending := old.State == domain.OrderStatePending
	old.State = domain.OrderStateCancelled
	old.ClosedBar = l.bar

	repl := l.newOrder(spec)
	// The replacement inherits the old order's relationships so an OCO
	// sibling keeps pointing at a live protective order.
	repl.ParentID = old.ParentID
	if old.OCOID != "" {
		repl.OCOID = old.OCOID
		if sib, ok := l.orders[old.OCOID]; ok && !sib.State.IsTerminal() {
			sib.OCOID = repl.ID
		}
	}
	// A replacement for an already-active order must not sit out a bar.
	// Only a replacement for a still-pending bracket child stays pending.
	if repl.State == domain.OrderStatePending && !wasPending {
		repl.State = domain.OrderStateActive
	}
	return repl, nil
}

// ActivateChildren activates all pending children of a filled parent and
// sizes every live child to the parent's filled quantity. Called immediately
// after each parent fill, before price-path evaluation continues within the
// same bar. A protective exit must never trade more than the entry actually
// filled: children of a partially filled parent shrink to the filled amount
// and grow back toward their submitted size as carried remainder fills land.
func (l *Ledger) ActivateChildren(parentID string) []*domain.Order {
	parent, err := l.Get(parentID)
	if err != nil {
		return nil
	}
	var out []*domain.Order
	for _, o := range l.orders {
		if o.ParentID != parentID || o.State.IsTerminal() {
			continue
		}
		if parent.FilledQty.IsPositive() {
			o.Qty = decimal.Min(o.ReqQty, parent.FilledQty)
		}
		if o.State == domain.OrderStatePending {
			o.State = domain.OrderStateActive
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmitSeq < out[j].SubmitSeq })
	return out
}

// ExpireDue expires every non-terminal order whose expiry bar has passed.
// Runs at start-of-bar before activation so an expired stop never triggers.
func (l *Ledger) ExpireDue(bar int) []*domain.Order {
	var out []*domain.Order
	for _, o := range l.orders {
		if o.ExpiryBar != domain.NoBar && bar > o.ExpiryBar && !o.State.IsTerminal() {
			o.State = domain.OrderStateExpired
			o.ClosedBar = bar
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmitSeq < out[j].SubmitSeq })
	return out
}

// PendingTopLevel returns pending orders with no bracket parent, in
// submission order. These activate at start-of-bar.
func (l *Ledger) PendingTopLevel() []*domain.Order {
	var out []*domain.Order
	for _, o := range l.orders {
		if o.State == domain.OrderStatePending && o.ParentID == "" {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmitSeq < out[j].SubmitSeq })
	return out
}

// OpenOrders returns every fillable or triggerable order in submission order.
func (l *Ledger) OpenOrders() []*domain.Order {
	var out []*domain.Order
	for _, o := range l.orders {
		switch o.State {
		case domain.OrderStateActive, domain.OrderStateTriggered, domain.OrderStatePartiallyFilled:
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmitSeq < out[j].SubmitSeq })
	return out
}
