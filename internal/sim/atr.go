package sim

import (
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// ATR tracks a rolling average true range over a fixed window using a ring
// buffer, so per-bar updates allocate nothing.
type ATR struct {
	period int
	ranges []decimal.Decimal
	head   int
	count  int
	sum    decimal.Decimal

	prevClose decimal.Decimal
	havePrev  bool
}

// NewATR creates a tracker with the given period.
func NewATR(period int) *ATR {
	if period <= 0 {
		period = 14
	}
	return &ATR{
		period: period,
		ranges: make([]decimal.Decimal, period),
		sum:    decimal.Zero,
	}
}

// Update feeds one bar. Void bars must not be fed.
func (a *ATR) Update(bar domain.Bar) {
	tr := bar.TrueRange(a.prevClose, a.havePrev)

	if a.count == a.period {
		a.sum = a.sum.Sub(a.ranges[a.head])
	}
	a.ranges[a.head] = tr
	a.sum = a.sum.Add(tr)
	a.head = (a.head + 1) % a.period
	if a.count < a.period {
		a.count++
	}

	a.prevClose = bar.Close
	a.havePrev = true
}

// Value returns the current average true range. Before the window fills it
// averages over the bars seen so far; with no bars it is zero.
func (a *ATR) Value() decimal.Decimal {
	if a.count == 0 {
		return decimal.Zero
	}
	return a.sum.Div(decimal.NewFromInt(int64(a.count)))
}

// Ready reports whether a full window has been observed.
func (a *ATR) Ready() bool { return a.count == a.period }
