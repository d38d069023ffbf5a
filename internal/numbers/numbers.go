// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package numbers

import (
	"math/big"
)

// ZeroBigInt defines 0 as *big.Int type.
var ZeroBigInt = big.NewInt(0)

// IsPositive returns true if the number is greater than zero.
func IsPositive(num *big.Int) bool {
	return num.Sign() > 0
}

// IsZero returns true if the number is zero.
func IsZero(num *big.Int) bool {
	return num.Sign() == 0
}

// IsGreater returns true is a > b.
func IsGreater(a, b *big.Int) bool {
	return a.Cmp(b) > 0
}

// IsGreaterOrEqual returns true is a >= b.
func IsGreaterOrEqual(a, b *big.Int) bool {
	return a.Cmp(b) >= 0
}

// IsEqual returns true is a = b.
func IsEqual(a, b *big.Int) bool {
	return a.Cmp(b) == 0
}
