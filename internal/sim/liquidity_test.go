package sim

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllocatorBudgetSharedAcrossTakes(t *testing.T) {
	// 10% of 100 volume = 10 units for the whole bar.
	a := NewAllocator(dec("0.1"), dec("100"))

	if got := a.Take(dec("6")); !got.Equal(dec("6")) {
		t.Fatalf("expected 6 granted, got %s", got)
	}
	if got := a.Take(dec("6")); !got.Equal(dec("4")) {
		t.Fatalf("expected 4 granted from depleted budget, got %s", got)
	}
	if !a.Exhausted() {
		t.Error("expected exhausted budget")
	}
	if got := a.Take(dec("1")); !got.IsZero() {
		t.Errorf("expected zero from exhausted budget, got %s", got)
	}
}

func TestAllocatorUnlimited(t *testing.T) {
	a := NewAllocator(decimal.Zero, dec("100"))
	if got := a.Take(dec("1000000")); !got.Equal(dec("1000000")) {
		t.Errorf("zero cap must grant everything, got %s", got)
	}
	if a.Exhausted() {
		t.Error("unlimited allocator must never exhaust")
	}
}

func TestAllocatorZeroVolume(t *testing.T) {
	a := NewAllocator(dec("0.1"), decimal.Zero)
	if got := a.Take(dec("5")); !got.Equal(dec("5")) {
		t.Errorf("zero-volume bar must not block fills, got %s", got)
	}
	if !a.Participation(dec("5")).IsZero() {
		t.Error("participation of a zero-volume bar is zero")
	}
}

func TestParticipation(t *testing.T) {
	a := NewAllocator(dec("0.5"), dec("200"))
	if got := a.Participation(dec("20")); !got.Equal(dec("0.1")) {
		t.Errorf("expected participation 0.1, got %s", got)
	}
}

func TestParseRemainderPolicy(t *testing.T) {
	for _, s := range []string{"CARRY", "CANCEL", "ACCEPT_PARTIAL"} {
		if _, err := ParseRemainderPolicy(s); err != nil {
			t.Errorf("%s: %v", s, err)
		}
	}
	if _, err := ParseRemainderPolicy("KEEP"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
