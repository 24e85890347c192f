// Package proptest provides property-based testing utilities with seeded
// random generation for reproducible tests.
//
// Property-based testing generates random inputs and verifies that certain
// invariants (properties) always hold. When a test fails, the seed is logged
// so the failure can be reproduced.
//
// Basic usage:
//
//	func TestMyProperty(t *testing.T) {
//	    proptest.QuickCheck(t, "my property", func(g *proptest.Generator) bool {
//	        n := g.IntRange(1, 100)
//	        return n >= 1 && n <= 100
//	    })
//	}
package proptest

import (
	"math/rand"
	"testing"
	"time"
)

// Generator wraps a seeded random number generator for reproducible
// random value generation. The seed is stored so it can be logged
// on test failure for reproducibility.
type Generator struct {
	rng  *rand.Rand
	seed int64
}

// New creates a new Generator with the given seed.
// If seed is 0, uses the current time as the seed.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the seed used by this generator.
// This is useful for logging on test failure so the failure can be reproduced.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Intn returns a random int in [0, n).
// Panics if n <= 0.
func (g *Generator) Intn(n int) int {
	return g.rng.Intn(n)
}

// IntRange returns a random int in [min, max] inclusive.
// Panics if min > max.
func (g *Generator) IntRange(min, max int) int {
	if min > max {
		panic("proptest: IntRange min > max")
	}
	return min + g.rng.Intn(max-min+1)
}

// Float64 returns a random float64 in [0.0, 1.0).
func (g *Generator) Float64() float64 {
	return g.rng.Float64()
}

// Bool returns a random boolean with 50% probability for each value.
func (g *Generator) Bool() bool {
	return g.rng.Intn(2) == 1
}

// BoolWithProb returns true with the given probability (0.0 to 1.0).
func (g *Generator) BoolWithProb(prob float64) bool {
	return g.rng.Float64() < prob
}

const lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
const alphaNum = lowerAlpha + "0123456789_"

// IdentifierLower returns a random lowercase identifier of length
// [1, maxLen]: a letter followed by letters, digits and underscores.
func (g *Generator) IdentifierLower(maxLen int) string {
	if maxLen < 1 {
		panic("proptest: IdentifierLower maxLen < 1")
	}
	length := g.IntRange(1, maxLen)
	buf := make([]byte, length)
	buf[0] = lowerAlpha[g.Intn(len(lowerAlpha))]
	for i := 1; i < length; i++ {
		buf[i] = alphaNum[g.Intn(len(alphaNum))]
	}
	return string(buf)
}

// defaultIterations is how many cases QuickCheck runs per property.
const defaultIterations = 200

// QuickCheck runs the property with freshly generated inputs. On the
// first failing case it reports the generator seed so the failure can be
// replayed.
func QuickCheck(t *testing.T, name string, property func(g *Generator) bool) {
	t.Helper()
	g := New(0)
	for i := 0; i < defaultIterations; i++ {
		if !property(g) {
			t.Fatalf("property %q failed on iteration %d (seed %d)", name, i, g.Seed())
		}
	}
}
