package domain

import (
	"github.com/shopspring/decimal"
)

// Side of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the offsetting side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the closed set of supported order kinds.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// MarketTiming selects when a market order fills within the bar cycle.
type MarketTiming string

const (
	TimingOpen  MarketTiming = "OPEN"
	TimingClose MarketTiming = "CLOSE"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderStatePending         OrderState = "PENDING"
	OrderStateActive          OrderState = "ACTIVE"
	OrderStateTriggered       OrderState = "TRIGGERED"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCancelled       OrderState = "CANCELLED"
	OrderStateExpired         OrderState = "EXPIRED"
)

// IsTerminal reports whether the state admits no further mutation.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateFilled || s == OrderStateCancelled || s == OrderStateExpired
}

// NoBar marks an unset bar index (closing bar of a live order, no expiry).
const NoBar = -1

// Order is a single simulated order. Orders live in a flat table keyed by
// ID; bracket and OCO relationships are plain ID references, never pointers.
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Type   OrderType
	Timing MarketTiming // market orders only

	StopPrice  decimal.Decimal // stop, stop-limit
	LimitPrice decimal.Decimal // limit, stop-limit

	Qty       decimal.Decimal // working size; bracket children track the parent's fills
	ReqQty    decimal.Decimal // size as submitted, the ceiling for Qty
	FilledQty decimal.Decimal

	State OrderState

	ParentID string // bracket parent, "" if none
	OCOID    string // OCO sibling, "" if none

	CreatedBar int
	ClosedBar  int // NoBar until terminal
	ExpiryBar  int // NoBar if good-till-cancel

	SubmitSeq uint64 // submission order, drives liquidity priority
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// IsOpen reports whether the order can still trade.
func (o *Order) IsOpen() bool {
	return !o.State.IsTerminal()
}

// HasTrigger reports whether the order carries a stop trigger.
func (o *Order) HasTrigger() bool {
	return o.Type == OrderTypeStop || o.Type == OrderTypeStopLimit
}
