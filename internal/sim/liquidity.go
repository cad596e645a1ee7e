package sim

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RemainderPolicy decides what happens to quantity the participation cap
// could not fill this bar.
type RemainderPolicy string

const (
	// RemainderCarry keeps the unfilled remainder working next bar.
	RemainderCarry RemainderPolicy = "CARRY"
	// RemainderCancel cancels the unfilled remainder outright.
	RemainderCancel RemainderPolicy = "CANCEL"
	// RemainderAccept finalizes the order with whatever filled.
	RemainderAccept RemainderPolicy = "ACCEPT_PARTIAL"
)

// ParseRemainderPolicy converts a config string to a RemainderPolicy.
func ParseRemainderPolicy(s string) (RemainderPolicy, error) {
	switch RemainderPolicy(s) {
	case RemainderCarry, RemainderCancel, RemainderAccept:
		return RemainderPolicy(s), nil
	}
	return "", fmt.Errorf("unknown remainder policy %q", s)
}

// Allocator meters one bar's fillable volume. All fills of a bar draw from
// the same budget, so competing orders cannot each consume the full cap.
type Allocator struct {
	unlimited bool
	remaining decimal.Decimal
	volume    decimal.Decimal
}

// NewAllocator builds the per-bar budget: cap (a fraction) times the bar's
// volume. A zero cap disables the limit.
func NewAllocator(cap, barVolume decimal.Decimal) *Allocator {
	if cap.IsZero() || barVolume.IsZero() {
		return &Allocator{unlimited: true, volume: barVolume}
	}
	return &Allocator{remaining: cap.Mul(barVolume), volume: barVolume}
}

// Take consumes up to qty from the budget and returns the granted amount.
func (a *Allocator) Take(qty decimal.Decimal) decimal.Decimal {
	if a.unlimited {
		return qty
	}
	granted := decimal.Min(qty, a.remaining)
	if granted.IsNegative() {
		granted = decimal.Zero
	}
	a.remaining = a.remaining.Sub(granted)
	return granted
}

// Participation returns the volume fraction a fill of qty represents.
func (a *Allocator) Participation(qty decimal.Decimal) decimal.Decimal {
	if a.volume.IsZero() {
		return decimal.Zero
	}
	return qty.Div(a.volume)
}

// Exhausted reports whether the budget is spent.
func (a *Allocator) Exhausted() bool {
	return !a.unlimited && !a.remaining.IsPositive()
}
