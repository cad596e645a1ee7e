package domain

import (
	"errors"
	"testing"
)

func testInstrument() Instrument {
	return Instrument{Symbol: "BTC-USDT", TickSize: dec("0.5"), LotSize: dec("0.1")}
}

func TestRoundPriceNearest(t *testing.T) {
	inst := testInstrument()
	p, err := inst.RoundPrice(dec("100.3"), RoundNearest)
	if err != nil {
		t.Fatalf("RoundPrice failed: %v", err)
	}
	if !p.Equal(dec("100.5")) {
		t.Errorf("expected 100.5, got %s", p)
	}
}

func TestRoundPriceReject(t *testing.T) {
	inst := testInstrument()
	if _, err := inst.RoundPrice(dec("100.5"), RoundReject); err != nil {
		t.Errorf("on-grid price rejected: %v", err)
	}

	_, err := inst.RoundPrice(dec("100.3"), RoundReject)
	if err == nil {
		t.Fatal("expected rejection for off-grid price")
	}
	var re *RoundingError
	if !errors.As(err, &re) {
		t.Fatalf("expected RoundingError, got %T", err)
	}
	if re.Field != "price" {
		t.Errorf("expected field price, got %s", re.Field)
	}
}

func TestRoundLimitPriceDirectional(t *testing.T) {
	inst := testInstrument()

	// Buy limits round down, sell limits round up, so the resting order
	// never becomes more aggressive than requested.
	buy, err := inst.RoundLimitPrice(SideBuy, dec("100.4"), RoundNearest)
	if err != nil {
		t.Fatalf("buy round failed: %v", err)
	}
	if !buy.Equal(dec("100")) {
		t.Errorf("expected buy limit 100, got %s", buy)
	}

	sell, err := inst.RoundLimitPrice(SideSell, dec("100.1"), RoundNearest)
	if err != nil {
		t.Fatalf("sell round failed: %v", err)
	}
	if !sell.Equal(dec("100.5")) {
		t.Errorf("expected sell limit 100.5, got %s", sell)
	}
}

func TestRoundQtyNeverRoundsUp(t *testing.T) {
	inst := testInstrument()

	q, err := inst.RoundQty(dec("0.19"), RoundNearest)
	if err != nil {
		t.Fatalf("RoundQty failed: %v", err)
	}
	if !q.Equal(dec("0.1")) {
		t.Errorf("expected 0.1, got %s", q)
	}

	// Less than one lot rounds to zero, not up to a lot.
	q, err = inst.RoundQty(dec("0.09"), RoundNearest)
	if err != nil {
		t.Fatalf("RoundQty failed: %v", err)
	}
	if !q.IsZero() {
		t.Errorf("expected zero, got %s", q)
	}
}

func TestRoundQtyReject(t *testing.T) {
	inst := testInstrument()
	if _, err := inst.RoundQty(dec("0.19"), RoundReject); err == nil {
		t.Error("expected rejection for off-grid quantity")
	}
	if _, err := inst.RoundQty(dec("0.2"), RoundReject); err != nil {
		t.Errorf("on-grid quantity rejected: %v", err)
	}
}

func TestZeroStepsPassThrough(t *testing.T) {
	inst := Instrument{Symbol: "X"}
	p, err := inst.RoundPrice(dec("123.456"), RoundNearest)
	if err != nil || !p.Equal(dec("123.456")) {
		t.Errorf("zero tick must pass through, got %s err %v", p, err)
	}
	q, err := inst.RoundQty(dec("0.007"), RoundNearest)
	if err != nil || !q.Equal(dec("0.007")) {
		t.Errorf("zero lot must pass through, got %s err %v", q, err)
	}
}
