package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyFillOpenAndAdd(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}

	out := p.ApplyFill(SideBuy, dec("1"), dec("100"), 3)
	if !p.Qty.Equal(dec("1")) {
		t.Fatalf("expected qty 1, got %s", p.Qty)
	}
	if !p.AvgEntry.Equal(dec("100")) {
		t.Errorf("expected avg entry 100, got %s", p.AvgEntry)
	}
	if p.OpenedBar != 3 {
		t.Errorf("expected opened bar 3, got %d", p.OpenedBar)
	}
	if out.ClosedQty.IsPositive() {
		t.Errorf("opening fill should close nothing, closed %s", out.ClosedQty)
	}

	// Add at a higher price: entry becomes the weighted average.
	p.ApplyFill(SideBuy, dec("1"), dec("110"), 4)
	if !p.Qty.Equal(dec("2")) {
		t.Fatalf("expected qty 2, got %s", p.Qty)
	}
	if !p.AvgEntry.Equal(dec("105")) {
		t.Errorf("expected avg entry 105, got %s", p.AvgEntry)
	}
}

func TestApplyFillReduceRealizes(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideBuy, dec("2"), dec("100"), 0)

	out := p.ApplyFill(SideSell, dec("1"), dec("110"), 5)
	if !out.ClosedQty.Equal(dec("1")) {
		t.Fatalf("expected closed qty 1, got %s", out.ClosedQty)
	}
	if !out.Realized.Equal(dec("10")) {
		t.Errorf("expected realized 10, got %s", out.Realized)
	}
	if out.NowFlat {
		t.Error("position should still be open")
	}
	if !p.Qty.Equal(dec("1")) {
		t.Errorf("expected remaining qty 1, got %s", p.Qty)
	}
}

func TestApplyFillFlattenClearsStop(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideBuy, dec("1"), dec("100"), 0)
	p.SetStop(dec("95"))

	out := p.ApplyFill(SideSell, dec("1"), dec("90"), 2)
	if !out.NowFlat {
		t.Fatal("expected flat")
	}
	if !out.Realized.Equal(dec("-10")) {
		t.Errorf("expected realized -10, got %s", out.Realized)
	}
	if p.HasStop {
		t.Error("stop state must clear on flat")
	}
	if p.Side() != Flat {
		t.Errorf("expected flat side, got %d", p.Side())
	}
}

func TestApplyFillReverseThroughFlat(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideBuy, dec("1"), dec("100"), 0)
	p.SetStop(dec("95"))

	out := p.ApplyFill(SideSell, dec("3"), dec("105"), 7)
	if !out.ClosedQty.Equal(dec("1")) {
		t.Fatalf("expected closed qty 1, got %s", out.ClosedQty)
	}
	if !out.Realized.Equal(dec("5")) {
		t.Errorf("expected realized 5, got %s", out.Realized)
	}
	if p.Side() != Short {
		t.Fatalf("expected short, got %d", p.Side())
	}
	if !p.Qty.Equal(dec("-2")) {
		t.Errorf("expected qty -2, got %s", p.Qty)
	}
	// Remainder is a fresh position at the fill price.
	if !p.AvgEntry.Equal(dec("105")) {
		t.Errorf("expected fresh entry 105, got %s", p.AvgEntry)
	}
	if p.OpenedBar != 7 {
		t.Errorf("expected opened bar 7, got %d", p.OpenedBar)
	}
	if p.HasStop {
		t.Error("reversal must not inherit the old stop")
	}
}

func TestApplyFillShortRealized(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideSell, dec("2"), dec("100"), 0)

	out := p.ApplyFill(SideBuy, dec("2"), dec("90"), 3)
	if !out.Realized.Equal(dec("20")) {
		t.Errorf("expected realized 20 on short cover, got %s", out.Realized)
	}
	if !out.NowFlat {
		t.Error("expected flat after full cover")
	}
}

func TestRatchetLongNeverLoosens(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideBuy, dec("1"), dec("100"), 0)

	p.SetStop(dec("90"))
	p.SetStop(dec("95"))
	if !p.StopLevel.Equal(dec("95")) {
		t.Fatalf("expected stop 95, got %s", p.StopLevel)
	}

	// Volatility expansion proposes 90 again: rejected.
	p.SetStop(dec("90"))
	if !p.StopLevel.Equal(dec("95")) {
		t.Errorf("stop loosened from 95 to %s", p.StopLevel)
	}
}

func TestRatchetShortNeverLoosens(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideSell, dec("1"), dec("100"), 0)

	p.SetStop(dec("110"))
	p.SetStop(dec("105"))
	if !p.StopLevel.Equal(dec("105")) {
		t.Fatalf("expected stop 105, got %s", p.StopLevel)
	}
	p.SetStop(dec("112"))
	if !p.StopLevel.Equal(dec("105")) {
		t.Errorf("short stop loosened from 105 to %s", p.StopLevel)
	}
}

func TestRatchetMonotonic(t *testing.T) {
	p := &Position{Symbol: "BTC-USDT"}
	p.ApplyFill(SideBuy, dec("1"), dec("100"), 0)

	proposals := []string{"90", "92", "89", "95", "93", "96", "80"}
	prev := decimal.Zero
	for i, s := range proposals {
		p.SetStop(dec(s))
		if i > 0 && p.StopLevel.LessThan(prev) {
			t.Fatalf("stop level decreased: %s -> %s after proposal %s", prev, p.StopLevel, s)
		}
		prev = p.StopLevel
	}
	if !p.StopLevel.Equal(dec("96")) {
		t.Errorf("expected final stop 96, got %s", p.StopLevel)
	}
}
