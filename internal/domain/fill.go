package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one executed trade against an order. Fills are immutable once
// created and appended to the run's audit trail in execution order.
type Fill struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	RunID      string          `gorm:"index" json:"run_id"`
	OrderID    string          `gorm:"index" json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Bar        int             `json:"bar"`
	WasGapped  bool            `json:"was_gapped"`
	Slippage   decimal.Decimal `json:"slippage"`
	Commission decimal.Decimal `json:"commission"`
	CreatedAt  time.Time       `json:"-"`
}

// Trade is the closed-lot record emitted when a fill reduces a position.
type Trade struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	RunID      string          `gorm:"index" json:"run_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"` // side of the closed lot
	Qty        decimal.Decimal `json:"qty"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	EntryBar   int             `json:"entry_bar"`
	ExitBar    int             `json:"exit_bar"`
	Realized   decimal.Decimal `json:"realized"`
	Commission decimal.Decimal `json:"commission"`
	ExitOrder  string          `json:"exit_order"`
	CreatedAt  time.Time       `json:"-"`
}

// EquityPoint is one post-bar mark of the account.
type EquityPoint struct {
	ID       uint            `gorm:"primaryKey" json:"-"`
	RunID    string          `gorm:"index" json:"run_id"`
	Bar      int             `json:"bar"`
	Time     time.Time       `json:"time"`
	Cash     decimal.Decimal `json:"cash"`
	Equity   decimal.Decimal `json:"equity"`
	Drawdown decimal.Decimal `json:"drawdown"`
}
