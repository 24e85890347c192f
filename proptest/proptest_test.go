package proptest

import "testing"

func TestSameSeedSameSequence(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 100; i++ {
		if a.Intn(1000) != b.Intn(1000) {
			t.Fatal("same seed diverged")
		}
	}
}

func TestIntRangeBounds(t *testing.T) {
	QuickCheck(t, "IntRange stays in bounds", func(g *Generator) bool {
		lo := g.Intn(100)
		hi := lo + g.Intn(100)
		n := g.IntRange(lo, hi)
		return n >= lo && n <= hi
	})
}

func TestIdentifierLowerShape(t *testing.T) {
	QuickCheck(t, "identifiers start with a letter", func(g *Generator) bool {
		id := g.IdentifierLower(12)
		if len(id) < 1 || len(id) > 12 {
			return false
		}
		return id[0] >= 'a' && id[0] <= 'z'
	})
}

func TestSliceNLength(t *testing.T) {
	QuickCheck(t, "SliceN respects min and max", func(g *Generator) bool {
		s := SliceN(g, 2, 5, func(g *Generator) int { return g.Intn(10) })
		return len(s) >= 2 && len(s) <= 5
	})
}
