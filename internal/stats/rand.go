package stats

import (
	"math/rand/v2"
	"time"
)

// Rand is the random source consumed by the randomized algorithms
// (k-means++ seeding, Monte Carlo sampling). *rand.Rand satisfies it.
//
// A Rand is not safe for concurrent use; every analysis call gets its own.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns a deterministic PCG-backed source for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandFor returns NewRand(seed) when seed is non-zero, otherwise a source
// seeded from the clock.
func RandFor(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return NewRand(seed)
}
