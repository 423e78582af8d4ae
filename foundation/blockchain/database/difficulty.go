package database

import (
	"math/big"
)

// Target decodes the compact bits: coefficient * 256^(exponent-3). The
// coefficient is treated as unsigned.
func (b Bits) Target() *big.Int {
	exp := uint(b >> 24)
	coef := big.NewInt(int64(b & 0x00ffffff))

	if exp <= 3 {
		return coef.Rsh(coef, 8*(3-exp))
	}
	return coef.Lsh(coef, 8*(exp-3))
}

// MaxBits is the largest target the compact form can hold.
const MaxBits = Bits(0xff7fffff)

// TargetToBits encodes a target into compact bits. The value is reduced to
// its minimal big endian bytes, a zero byte is prepended when the top bit is
// set, and the length and first three bytes are packed. The encoding keeps
// only three bytes of precision. A target too long for the one byte length
// encodes as MaxBits.
func TargetToBits(target *big.Int) Bits {
	if target.Sign() <= 0 {
		return 0
	}

	b := target.Bytes()
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}

	if len(b) > 0xff {
		return MaxBits
	}

	var coef uint32
	for i := range 3 {
		coef <<= 8
		if i < len(b) {
			coef |= uint32(b[i])
		}
	}

	return Bits(uint32(len(b))<<24 | coef)
}

// =============================================================================

// RetargetParams represents the settings for adjusting the difficulty.
type RetargetParams struct {
	Interval     uint64   // Number of blocks between adjustments.
	BlockSeconds uint64   // Desired seconds between blocks.
	MaxTarget    *big.Int // Easiest target allowed after an adjustment.
}

// IsRetargetHeight reports whether a block at the specified height starts
// a new difficulty interval.
func IsRetargetHeight(height uint64, interval uint64) bool {
	return interval > 0 && height > 0 && height%interval == 0
}

// NextBits computes the bits for the block following an interval. The time
// the interval took is clamped to a quarter and four times the expected
// duration, the previous target is scaled by actual/expected and capped at
// the maximum target.
func NextBits(prev Bits, firstTimestamp uint32, lastTimestamp uint32, p RetargetParams) Bits {
	expected := int64(p.Interval * p.BlockSeconds)
	if expected <= 0 {
		return prev
	}

	actual := int64(lastTimestamp) - int64(firstTimestamp)
	actual = max(actual, expected/4)
	actual = min(actual, expected*4)

	target := prev.Target()
	target.Mul(target, big.NewInt(actual))
	target.Div(target, big.NewInt(expected))

	if p.MaxTarget != nil && target.Cmp(p.MaxTarget) > 0 {
		target.Set(p.MaxTarget)
	}

	return TargetToBits(target)
}

// =============================================================================

// BlockReward returns the subsidy for the height. The subsidy halves every
// interval and is zero once it has been shifted 64 times.
func BlockReward(height uint64, initialSubsidy uint64, halvingInterval uint64) uint64 {
	if halvingInterval == 0 {
		return initialSubsidy
	}

	halvings := height / halvingInterval
	if halvings >= 64 {
		return 0
	}

	return initialSubsidy >> halvings
}
