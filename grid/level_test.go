package grid

import (
	"testing"
)

func TestPlanSymmetric(t *testing.T) {
	lv := Plan(100.0, 1.0, 3)

	wantBuys := []Level{LevelOf(99), LevelOf(98), LevelOf(97)}
	wantSells := []Level{LevelOf(101), LevelOf(102), LevelOf(103)}

	if len(lv.Buys) != 3 || len(lv.Sells) != 3 {
		t.Fatalf("unexpected level counts: %d buys, %d sells", len(lv.Buys), len(lv.Sells))
	}
	for i, want := range wantBuys {
		if lv.Buys[i] != want {
			t.Fatalf("buy[%d] = %s, want %s", i, lv.Buys[i], want)
		}
	}
	for i, want := range wantSells {
		if lv.Sells[i] != want {
			t.Fatalf("sell[%d] = %s, want %s", i, lv.Sells[i], want)
		}
	}
}

func TestPlanDropsNonPositiveBuys(t *testing.T) {
	// 参考价 2.0、间距 1.0：第二、三档买价落到 0 及以下，应被丢弃。
	lv := Plan(2.0, 1.0, 3)
	if len(lv.Buys) != 1 {
		t.Fatalf("expected 1 buy level, got %v", lv.Buys)
	}
	if lv.Buys[0] != LevelOf(1.0) {
		t.Fatalf("buy[0] = %s, want 1.0000", lv.Buys[0])
	}
	if len(lv.Sells) != 3 {
		t.Fatalf("expected 3 sell levels, got %v", lv.Sells)
	}
}

func TestPlanDegenerateInputs(t *testing.T) {
	if lv := Plan(100, 0, 3); len(lv.Buys) != 0 || len(lv.Sells) != 0 {
		t.Fatalf("zero spacing should plan nothing: %+v", lv)
	}
	if lv := Plan(100, 1, 0); len(lv.Buys) != 0 || len(lv.Sells) != 0 {
		t.Fatalf("zero count should plan nothing: %+v", lv)
	}
}

func TestLevelRounding(t *testing.T) {
	// 相差不足半个 tick 的价格归并到同一档位。
	if LevelOf(0.56780) != Level(5678) {
		t.Fatalf("LevelOf(0.5678) = %d", LevelOf(0.5678))
	}
	if LevelOf(0.567801) != LevelOf(0.5678) {
		t.Fatalf("sub-tick prices must collapse to one level")
	}
	if got := LevelOf(0.5678).Price(); got != 0.5678 {
		t.Fatalf("Price() = %v", got)
	}
	if got := LevelOf(0.5678).String(); got != "0.5678" {
		t.Fatalf("String() = %q", got)
	}
}

func TestLevelShift(t *testing.T) {
	l := LevelOf(98.0)
	if l.Shift(1.0) != LevelOf(99.0) {
		t.Fatalf("shift up: %s", l.Shift(1.0))
	}
	if l.Shift(-1.0) != LevelOf(97.0) {
		t.Fatalf("shift down: %s", l.Shift(-1.0))
	}
}

func TestBandContains(t *testing.T) {
	b := BandAround(100.0, 1.0, 3, 0.5)
	if b.Low != LevelOf(96.5) || b.High != LevelOf(103.5) {
		t.Fatalf("band = [%s, %s]", b.Low, b.High)
	}
	for _, tc := range []struct {
		price float64
		in    bool
	}{
		{96.5, true},
		{100.0, true},
		{103.5, true},
		{96.4999, false},
		{103.5001, false},
	} {
		if got := b.Contains(LevelOf(tc.price)); got != tc.in {
			t.Fatalf("Contains(%v) = %v", tc.price, got)
		}
	}
}
