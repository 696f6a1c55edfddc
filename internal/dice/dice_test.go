package dice

import (
	"errors"
	"testing"
)

// TestRollNotation ensures well-formed expressions stay in range.
func TestRollNotation(t *testing.T) {
	r := New(42)
	cases := []struct {
		expr     string
		min, max int
	}{
		{"d20", 1, 20},
		{"1d20", 1, 20},
		{"2d6+3", 5, 15},
		{"3d4-2", 1, 10},
		{"1D8 + 1", 2, 9},
	}
	for _, tc := range cases {
		for i := 0; i < 200; i++ {
			roll, err := r.Roll(tc.expr)
			if err != nil {
				t.Fatalf("Roll(%q) error: %v", tc.expr, err)
			}
			if roll.Total < tc.min || roll.Total > tc.max {
				t.Fatalf("Roll(%q) = %d outside [%d,%d]", tc.expr, roll.Total, tc.min, tc.max)
			}
		}
	}
}

// TestRollRejectsMalformed ensures bad notation is reported, never defaulted.
func TestRollRejectsMalformed(t *testing.T) {
	r := New(1)
	for _, expr := range []string{"", "d", "20", "0d6", "2d0", "2d6*3", "xd6", "2d6+",
		"99999999999999999999d6", "1d99999999999999999999", "1d6+99999999999999999999",
		"1001d6", "1d1001", "1d6-100001"} {
		if _, err := r.Roll(expr); !errors.Is(err, ErrInvalidNotation) {
			t.Errorf("Roll(%q) error = %v, want ErrInvalidNotation", expr, err)
		}
	}
}

// TestParseBounds ensures the largest accepted notation still parses.
func TestParseBounds(t *testing.T) {
	count, sides, mod, err := Parse("1000d1000-100000")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if count != MaxDice || sides != MaxSides || mod != -MaxModifier {
		t.Errorf("Parse = %d, %d, %d", count, sides, mod)
	}
}

// TestSameSeedSameSequence ensures rollers are deterministic.
func TestSameSeedSameSequence(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 50; i++ {
		if x, y := a.D20(), b.D20(); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
	if a.Position() != 50 {
		t.Errorf("expected position 50, got %d", a.Position())
	}
}

func TestDamageClampedAtZero(t *testing.T) {
	r := New(3)
	for i := 0; i < 100; i++ {
		d, err := r.Damage("1d4", -10)
		if err != nil {
			t.Fatal(err)
		}
		if d != 0 {
			t.Fatalf("expected clamp to 0, got %d", d)
		}
	}
}

func TestAdvantageNeverBelowDisadvantageOnAverage(t *testing.T) {
	r := New(11)
	adv, dis := 0, 0
	for i := 0; i < 1000; i++ {
		adv += r.Advantage(0)
		dis += r.Disadvantage(0)
	}
	if adv <= dis {
		t.Errorf("advantage total %d should exceed disadvantage total %d", adv, dis)
	}
}

func TestPercentileAndCheckBounds(t *testing.T) {
	r := New(5)
	for i := 0; i < 500; i++ {
		p := r.Percentile()
		if p < 0 || p > 99 {
			t.Fatalf("percentile out of range: %d", p)
		}
		c := r.SkillCheck(2, 15)
		if c.Passed != (c.Total >= 15) || c.Total != c.Natural+2 {
			t.Fatalf("inconsistent check %+v", c)
		}
	}
}

func TestWeightedIndex(t *testing.T) {
	r := New(9)
	if got := r.WeightedIndex([]int{0, 0}); got != -1 {
		t.Errorf("expected -1 for zero weights, got %d", got)
	}
	for i := 0; i < 100; i++ {
		if got := r.WeightedIndex([]int{0, 5, 0}); got != 1 {
			t.Fatalf("expected index 1, got %d", got)
		}
	}
}

func TestDeriveIsStable(t *testing.T) {
	if Derive(10, 3).D20() != Derive(10, 3).D20() {
		t.Error("derived rollers with equal inputs must agree")
	}
	if Derive(10, 3).Seed() == Derive(10, 4).Seed() {
		t.Error("different salts should give different seeds")
	}
}
