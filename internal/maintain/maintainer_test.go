package maintain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func closeBar(close string) domain.Bar {
	return domain.Bar{
		Time:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol: "BTC-USDT",
		Open:   dec(close),
		High:   dec(close),
		Low:    dec(close),
		Close:  dec(close),
		Status: domain.MarketOpen,
	}
}

func longPosition(stop string) *domain.Position {
	p := &domain.Position{Symbol: "BTC-USDT"}
	p.ApplyFill(domain.SideBuy, dec("1"), dec("100"), 0)
	if stop != "" {
		p.SetStop(dec(stop))
	}
	return p
}

func TestTrailEmitsTighterReplace(t *testing.T) {
	m := New(Config{TrailMult: dec("2")})
	pos := longPosition("95")

	// Close 104, ATR 2: proposed stop 104 - 4 = 100, tighter than 95.
	intents := m.OnBarClose(closeBar("104"), pos, dec("2"), "stop-1")
	if len(intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(intents))
	}
	it := intents[0]
	if it.Kind != domain.IntentCancelReplace || it.TargetID != "stop-1" {
		t.Fatalf("expected cancel-replace of stop-1, got %+v", it)
	}
	if !it.Spec.StopPrice.Equal(dec("100")) {
		t.Errorf("expected proposed stop 100, got %s", it.Spec.StopPrice)
	}
	if it.Spec.Side != domain.SideSell || it.Spec.Type != domain.OrderTypeStop {
		t.Errorf("expected sell stop, got %s %s", it.Spec.Side, it.Spec.Type)
	}
}

func TestTrailRejectsLoosening(t *testing.T) {
	m := New(Config{TrailMult: dec("2")})
	pos := longPosition("95")

	// ATR expansion: close 96, ATR 5 proposes 86. The ratchet discards it
	// and no churn replacement is emitted.
	intents := m.OnBarClose(closeBar("96"), pos, dec("5"), "stop-1")
	if len(intents) != 0 {
		t.Errorf("expected no intents for a looser stop, got %+v", intents)
	}
	if !pos.StopLevel.Equal(dec("95")) {
		t.Errorf("stop level moved to %s", pos.StopLevel)
	}
}

func TestTrailReferenceNeverRecomputedDown(t *testing.T) {
	m := New(Config{TrailMult: dec("1")})
	pos := longPosition("90")

	// Extreme snapshots at 110.
	m.OnBarClose(closeBar("110"), pos, dec("2"), "stop-1")
	pos.SetStop(dec("108"))

	// A pullback to 100 must not drag the reference below 110, so the
	// proposed stop stays 110-ATR and no loosening replace appears.
	intents := m.OnBarClose(closeBar("100"), pos, dec("2"), "stop-1")
	if len(intents) != 0 {
		t.Errorf("pullback produced intents: %+v", intents)
	}
}

func TestTrailShortDirection(t *testing.T) {
	m := New(Config{TrailMult: dec("2")})
	pos := &domain.Position{Symbol: "BTC-USDT"}
	pos.ApplyFill(domain.SideSell, dec("1"), dec("100"), 0)
	pos.SetStop(dec("108"))

	// Close 94, ATR 2: proposed 94 + 4 = 98, tighter than 108 for a short.
	intents := m.OnBarClose(closeBar("94"), pos, dec("2"), "stop-1")
	if len(intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(intents))
	}
	if !intents[0].Spec.StopPrice.Equal(dec("98")) {
		t.Errorf("expected stop 98, got %s", intents[0].Spec.StopPrice)
	}
	if intents[0].Spec.Side != domain.SideBuy {
		t.Errorf("short protective stop must buy, got %s", intents[0].Spec.Side)
	}
}

func TestTimeExitCancelsStopAndExits(t *testing.T) {
	m := New(Config{MaxHoldBars: 3})
	pos := longPosition("95")
	pos.BarsHeld = 3

	intents := m.OnBarClose(closeBar("100"), pos, decimal.Zero, "stop-1")
	if len(intents) != 2 {
		t.Fatalf("expected cancel + exit, got %d intents", len(intents))
	}
	if intents[0].Kind != domain.IntentCancel || intents[0].TargetID != "stop-1" {
		t.Errorf("first intent must cancel the stop, got %+v", intents[0])
	}
	exit := intents[1]
	if exit.Kind != domain.IntentSubmit || exit.Spec.Type != domain.OrderTypeMarket {
		t.Fatalf("second intent must be a market exit, got %+v", exit)
	}
	if exit.Spec.Side != domain.SideSell || exit.Spec.Timing != domain.TimingOpen {
		t.Errorf("long exit must sell at next open, got %s %s", exit.Spec.Side, exit.Spec.Timing)
	}

	// The exit is emitted exactly once.
	if again := m.OnBarClose(closeBar("100"), pos, decimal.Zero, "stop-1"); len(again) != 0 {
		t.Errorf("time exit re-emitted: %+v", again)
	}
}

func TestTimeExitDeferredAcrossVoidBars(t *testing.T) {
	m := New(Config{MaxHoldBars: 2})
	pos := longPosition("")
	pos.BarsHeld = 2

	// Threshold crossed on a void bar: nothing can fill there, so the
	// exit is only flagged.
	m.OnVoidBar(pos)
	pos.BarsHeld++
	m.OnVoidBar(pos)
	pos.BarsHeld++

	// First valid bar emits the deferred exit.
	intents := m.OnBarClose(closeBar("100"), pos, decimal.Zero, "")
	if len(intents) != 1 {
		t.Fatalf("expected 1 deferred exit intent, got %d", len(intents))
	}
	if intents[0].Kind != domain.IntentSubmit || intents[0].Spec.Type != domain.OrderTypeMarket {
		t.Errorf("expected market exit, got %+v", intents[0])
	}
}

func TestFlatResetsState(t *testing.T) {
	m := New(Config{TrailMult: dec("2"), MaxHoldBars: 2})
	pos := longPosition("95")
	pos.BarsHeld = 2
	m.OnBarClose(closeBar("100"), pos, dec("1"), "stop-1") // emits exit

	flat := &domain.Position{Symbol: "BTC-USDT"}
	if intents := m.OnBarClose(closeBar("100"), flat, dec("1"), ""); len(intents) != 0 {
		t.Fatalf("flat position produced intents: %+v", intents)
	}

	// A fresh position after the reset gets a fresh exit clock.
	pos2 := longPosition("90")
	pos2.BarsHeld = 2
	intents := m.OnBarClose(closeBar("100"), pos2, decimal.Zero, "stop-2")
	if len(intents) != 2 {
		t.Errorf("expected fresh time exit after reset, got %+v", intents)
	}
}

func TestNoTrailWithoutStopOrder(t *testing.T) {
	m := New(Config{TrailMult: dec("2")})
	pos := longPosition("")
	if intents := m.OnBarClose(closeBar("110"), pos, dec("2"), ""); len(intents) != 0 {
		t.Errorf("no live stop to replace, got %+v", intents)
	}
}
