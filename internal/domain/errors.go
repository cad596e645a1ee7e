package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownOrder is returned when an order id is not present in the ledger.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrBadSpec is returned when an order spec is structurally invalid.
	ErrBadSpec = errors.New("invalid order spec")
)

// StateError reports an order state transition not permitted from the
// current state. It indicates a caller bug, never a modeled outcome.
type StateError struct {
	OrderID string
	From    OrderState
	To      OrderState
	Bar     int
}

func (e *StateError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s at bar %d",
		e.OrderID, e.From, e.To, e.Bar)
}

// OverfillError reports an attempt to fill beyond the remaining quantity.
type OverfillError struct {
	OrderID   string
	Remaining decimal.Decimal
	Attempted decimal.Decimal
	Bar       int
}

func (e *OverfillError) Error() string {
	return fmt.Sprintf("order %s: fill %s exceeds remaining %s at bar %d",
		e.OrderID, e.Attempted, e.Remaining, e.Bar)
}

// RoundingError reports a price or quantity that violates instrument
// metadata under the reject policy.
type RoundingError struct {
	Symbol string
	Field  string // "price" or "qty"
	Value  decimal.Decimal
	Step   decimal.Decimal
}

func (e *RoundingError) Error() string {
	return fmt.Sprintf("%s: %s %s is not a multiple of %s",
		e.Symbol, e.Field, e.Value, e.Step)
}

// IsContractViolation reports whether err belongs to the fatal taxonomy:
// a caller bug or configuration error that must abort the run.
func IsContractViolation(err error) bool {
	var se *StateError
	var oe *OverfillError
	var re *RoundingError
	return errors.Is(err, ErrUnknownOrder) ||
		errors.As(err, &se) || errors.As(err, &oe) || errors.As(err, &re)
}
