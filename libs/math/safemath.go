package math

import (
	"errors"
	"math"
	"math/big"
)

var ErrOverflowUint64 = errors.New("uint64 overflow")

// SafeAddUint64 adds two uint64 integers.
// If there is an overflow it returns an error.
func SafeAddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflowUint64
	}
	return a + b, nil
}

// SafeMulUint64 multiplies two uint64 integers.
// If there is an overflow it returns an error.
func SafeMulUint64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflowUint64
	}
	return a * b, nil
}

// ExceedsFraction reports whether part/total is strictly greater than fr,
// i.e. part*fr.Denominator > total*fr.Numerator. The comparison is carried out
// in arbitrary precision so it never overflows.
func ExceedsFraction(part, total uint64, fr Fraction) bool {
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(part), new(big.Int).SetUint64(fr.Denominator))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(total), new(big.Int).SetUint64(fr.Numerator))
	return lhs.Cmp(rhs) > 0
}
