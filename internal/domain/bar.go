package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus flags whether a bar carries tradable prices.
type MarketStatus string

const (
	MarketOpen   MarketStatus = "OPEN"
	MarketClosed MarketStatus = "CLOSED"
)

// Bar is one OHLCV sample for a symbol. A Closed bar is a void bar: its
// price fields are unusable and must not activate, trigger or fill anything.
type Bar struct {
	Time   time.Time
	Symbol string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Status MarketStatus
}

// IsVoid reports whether the bar is closed-for-void.
func (b *Bar) IsVoid() bool {
	return b.Status == MarketClosed
}

// Contains reports whether price lies within [low, high].
func (b *Bar) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(b.Low) && price.LessThanOrEqual(b.High)
}

// TrueRange computes the bar's true range against the previous close.
// With no previous close the plain high-low range is used.
func (b *Bar) TrueRange(prevClose decimal.Decimal, havePrev bool) decimal.Decimal {
	hl := b.High.Sub(b.Low)
	if !havePrev {
		return hl
	}
	hc := b.High.Sub(prevClose).Abs()
	lc := b.Low.Sub(prevClose).Abs()
	return decimal.Max(hl, hc, lc)
}
