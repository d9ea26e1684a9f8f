// seeding holds the process-wide random generator. Environments and the stock
// agents draw from it, so a single SetSeed call makes a whole run reproducible.
package seeding

import (
	"math/rand"
	"sync"
)

// DefaultSeed is the seed in effect until SetSeed is called.
const DefaultSeed int64 = 42

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(DefaultSeed))
)

// SetSeed reseeds the shared generator.
func SetSeed(seed int64) {
	mu.Lock()
	defer mu.Unlock()
	rng = rand.New(rand.NewSource(seed))
}

// Intn returns a uniform int in [0, n) from the shared generator. Panics if n <= 0.
func Intn(n int) int {
	mu.Lock()
	defer mu.Unlock()
	return rng.Intn(n)
}

// Float64 returns a uniform float64 in [0, 1) from the shared generator.
func Float64() float64 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Float64()
}

// Shared returns a rand.Rand backed by the shared generator, for code that wants
// the *rand.Rand api (Perm, Shuffle, NormFloat64) while still consuming the
// process-wide stream.
func Shared() *rand.Rand {
	return rand.New(sharedSource{})
}

// sharedSource forwards to the current shared generator, so a later SetSeed
// is honored by previously obtained Shared() generators.
type sharedSource struct{}

func (sharedSource) Int63() int64 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Int63()
}

func (sharedSource) Seed(seed int64) {
	SetSeed(seed)
}
