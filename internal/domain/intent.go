package domain

import (
	"github.com/shopspring/decimal"
)

// IntentKind is the closed set of next-bar order adjustments a policy or the
// position maintainer may emit at the post-bar boundary.
type IntentKind string

const (
	IntentSubmit        IntentKind = "SUBMIT"
	IntentCancel        IntentKind = "CANCEL"
	IntentCancelReplace IntentKind = "CANCEL_REPLACE"
)

// OrderSpec describes an order to be created. Quantities and prices are raw;
// the ledger boundary rounds them against the instrument before acceptance.
type OrderSpec struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Timing     MarketTiming
	Qty        decimal.Decimal
	StopPrice  decimal.Decimal
	LimitPrice decimal.Decimal
	ExpiryBars int // bars the order stays eligible, 0 = good till cancel
}

// OrderIntent is one adjustment flowing back into the order ledger.
// For SUBMIT, optional bracket children stay pending until the entry fills
// and are linked to each other as OCO siblings.
type OrderIntent struct {
	Kind     IntentKind
	Spec     OrderSpec
	TargetID string // CANCEL and CANCEL_REPLACE

	StopChild   *OrderSpec
	TargetChild *OrderSpec
}

// RejectReason categorizes why an intent was blocked before reaching the
// ledger, for downstream "why no trade" diagnostics.
type RejectReason string

const (
	RejectTickViolation RejectReason = "TICK_VIOLATION"
	RejectLotViolation  RejectReason = "LOT_VIOLATION"
	RejectBadIntent     RejectReason = "BAD_INTENT"
	RejectLedger        RejectReason = "LEDGER"
)

// RejectedIntent is the structured audit record for a blocked intent.
type RejectedIntent struct {
	Bar    int
	Intent OrderIntent
	Reason RejectReason
	Detail string
}
