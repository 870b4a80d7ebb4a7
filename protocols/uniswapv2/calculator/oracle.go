package calculator

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// AmountOutAtPrice converts amountIn of a token with decimalsIn into the
// output token with decimalsOut, given an 18-decimal price of one whole input
// token in whole output tokens:
//
//	amountOut = amountIn * price * 10^decimalsOut / 10^(decimalsIn + 18)
//
// Every intermediate is checked against 2^256-1, as the on-chain version is.
func AmountOutAtPrice(amountIn, price *big.Int, decimalsIn, decimalsOut uint8) (*big.Int, error) {
	if err := checkAmount(amountIn); err != nil {
		return nil, err
	}
	if amountIn.Sign() == 0 {
		return new(big.Int), nil
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}

	a, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: amount %s", ErrArithmeticOverflow, amountIn)
	}
	p, overflow := uint256.FromBig(price)
	if overflow {
		return nil, fmt.Errorf("%w: price %s", ErrArithmeticOverflow, price)
	}
	scaleOut, err := scale256(uint(decimalsOut))
	if err != nil {
		return nil, fmt.Errorf("%w: 10^%d", err, decimalsOut)
	}
	scaleIn, err := scale256(uint(decimalsIn) + OraclePriceDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: 10^%d", err, uint(decimalsIn)+OraclePriceDecimals)
	}

	num, overflow := new(uint256.Int).MulOverflow(a, p)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, amountIn, price)
	}
	num, overflow = num.MulOverflow(num, scaleOut)
	if overflow {
		return nil, fmt.Errorf("%w: scaling by 10^%d", ErrArithmeticOverflow, decimalsOut)
	}
	return num.Div(num, scaleIn).ToBig(), nil
}
