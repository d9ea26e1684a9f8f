package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 shared between one writer goroutine and any number
// of readers without locking. The zero value holds 0.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.Store(val)
	return af
}

// Load atomically reads the float64.
func (af *AtomicFloat64) Load() float64 {
	return math.Float64frombits(af.bits.Load())
}

// Store atomically replaces the float64.
func (af *AtomicFloat64) Store(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// TryAdd adds addend once. If the value changes between the read and the swap
// the add is dropped and succeeded is false, so the caller can decide whether
// to recalculate or give up.
func (af *AtomicFloat64) TryAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// Add retries TryAdd until it lands and returns the new value.
func (af *AtomicFloat64) Add(addend float64) float64 {
	for {
		if newVal, ok := af.TryAdd(addend); ok {
			return newVal
		}
	}
}
