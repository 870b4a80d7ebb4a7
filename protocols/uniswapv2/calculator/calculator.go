// Package calculator prices constant-product venues two ways: from an
// 18-decimal oracle price, and exactly from pair reserves when those are known.
package calculator

import (
	"errors"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/holiman/uint256"
)

// OraclePriceDecimals is the fixed-point precision of oracle prices.
const OraclePriceDecimals = 18

var (
	// basisPointDivisor is 100% in basis points.
	basisPointDivisor = big.NewInt(10000)

	// ErrInvalidAmount is returned when an amount is negative.
	ErrInvalidAmount = engine.ErrInvalidAmount
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is engine.ErrTokenMismatch, re-exported for callers of the reserve math.
	ErrTokenMismatch = engine.ErrTokenMismatch
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrArithmeticOverflow is returned when an intermediate value exceeds 2^256-1.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrInvalidPrice is returned when the oracle answers with a non-positive price.
	ErrInvalidPrice = errors.New("oracle price must be positive")
)

// scale256 returns 10^exp as a uint256, failing once it no longer fits.
func scale256(exp uint) (*uint256.Int, error) {
	// 10^77 < 2^256 < 10^78
	if exp > 77 {
		return nil, ErrArithmeticOverflow
	}
	out := uint256.NewInt(1)
	step := uint256.NewInt(10)
	for i := uint(0); i < exp; i++ {
		out.Mul(out, step)
	}
	return out, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}
