package clock

import "testing"

func TestDerivedClockAbsoluteFrequency(t *testing.T) {
	root := NewRootClock("clk", R(100_000_000, 1), Rising)
	half := NewDerivedClock("clk_div2", root, R(1, 2), R(0, 1), Rising)

	got, err := half.AbsoluteFrequency()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := R(50_000_000, 1)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGatedClockUnknownFrequency(t *testing.T) {
	root := NewRootClock("clk", R(100_000_000, 1), Rising)
	gated := NewGatedClock("clk_gated", root, Rising)

	if _, err := gated.AbsoluteFrequency(); err == nil {
		t.Fatal("expected UnknownFrequency error for a signal-gated clock")
	}

	derivedFromGated := NewDerivedClock("clk_gated_div2", gated, R(1, 2), R(0, 1), Rising)
	if _, err := derivedFromGated.AbsoluteFrequency(); err == nil {
		t.Fatal("expected UnknownFrequency to propagate through a derived clock")
	}
}

func TestRelativeTo(t *testing.T) {
	root := NewRootClock("clk", R(100_000_000, 1), Rising)
	third := NewDerivedClock("clk_div3", root, R(1, 3), R(0, 1), Rising)

	ratio, _, err := RelativeTo(third, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ratio != R(1, 3) {
		t.Fatalf("got ratio %v, want 1/3", ratio)
	}
}

func TestRationalArithmetic(t *testing.T) {
	a := R(2, 4) // reduces to 1/2
	if a.Num != 1 || a.Den != 2 {
		t.Fatalf("expected reduced 1/2, got %v", a)
	}
	sum := R(1, 3).Add(R(1, 6))
	if sum != R(1, 2) {
		t.Fatalf("1/3+1/6 = %v, want 1/2", sum)
	}
}
