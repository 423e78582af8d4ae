// Package selector provides different transaction ordering strategies.
package selector

import (
	"fmt"
	"math/bits"
	"time"
)

// List of different select strategies.
const (
	StrategyFeeRate = "feerate"
	StrategyOldest  = "oldest"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFeeRate: byFeeRate,
	StrategyOldest:  byAge,
}

// Candidate is the information a strategy can use to order a transaction.
type Candidate struct {
	ID         string
	Fee        uint64
	Size       int
	Seq        uint64 // Admission order, unique per mempool.
	AdmittedAt time.Time
}

// Func reports whether a should be offered for a block before b. Every
// strategy MUST be a strict total order over candidates with distinct Seq
// values so selection is deterministic.
type Func func(a Candidate, b Candidate) bool

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byFeeRate orders by fee per byte in descending order. The rates are
// compared exactly by cross multiplying in 128 bits. Equal rates fall back
// to admission order.
func byFeeRate(a Candidate, b Candidate) bool {
	aHi, aLo := bits.Mul64(a.Fee, size(b))
	bHi, bLo := bits.Mul64(b.Fee, size(a))

	switch {
	case aHi != bHi:
		return aHi > bHi
	case aLo != bLo:
		return aLo > bLo
	}

	return a.Seq < b.Seq
}

// byAge orders by admission time, oldest first.
func byAge(a Candidate, b Candidate) bool {
	if !a.AdmittedAt.Equal(b.AdmittedAt) {
		return a.AdmittedAt.Before(b.AdmittedAt)
	}
	return a.Seq < b.Seq
}

// size treats anything below one byte as one byte.
func size(c Candidate) uint64 {
	if c.Size < 1 {
		return 1
	}
	return uint64(c.Size)
}
