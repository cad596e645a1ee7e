package sim

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestATRWarmup(t *testing.T) {
	a := NewATR(3)
	if !a.Value().IsZero() {
		t.Error("expected zero before any bar")
	}

	a.Update(mkBar("100", "104", "98", "102", "0"))
	// First bar has no previous close: plain high-low range.
	if !a.Value().Equal(dec("6")) {
		t.Errorf("expected 6, got %s", a.Value())
	}
	if a.Ready() {
		t.Error("not ready after one bar")
	}

	a.Update(mkBar("102", "103", "101", "102", "0"))
	a.Update(mkBar("102", "105", "100", "104", "0"))
	if !a.Ready() {
		t.Error("expected ready after full window")
	}
}

func TestATRTrueRangeUsesPrevClose(t *testing.T) {
	a := NewATR(2)
	a.Update(mkBar("100", "101", "99", "100", "0"))
	// Gap up: the range against the previous close dominates high-low.
	a.Update(mkBar("110", "111", "109", "110", "0"))

	// TRs: 2, then max(2, |111-100|, |109-100|) = 11. Average = 6.5.
	if !a.Value().Equal(decimal.RequireFromString("6.5")) {
		t.Errorf("expected 6.5, got %s", a.Value())
	}
}

func TestATRRollingWindow(t *testing.T) {
	a := NewATR(2)
	a.Update(mkBar("100", "102", "98", "100", "0")) // TR 4
	a.Update(mkBar("100", "101", "99", "100", "0")) // TR 2
	a.Update(mkBar("100", "101", "99", "100", "0")) // TR 2, evicts 4
	if !a.Value().Equal(dec("2")) {
		t.Errorf("expected 2 after eviction, got %s", a.Value())
	}
}
