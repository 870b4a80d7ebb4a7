package calculator

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// reserveMath holds scratch big.Ints for one reserve calculation.
// It is not safe for concurrent use; instances come from reserveMathPool.
type reserveMath struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
	newReserve0     *big.Int
	newReserve1     *big.Int
}

var reserveMathPool = sync.Pool{
	New: func() any {
		return &reserveMath{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			newReserve0:     new(big.Int),
			newReserve1:     new(big.Int),
		}
	},
}

// GetAmountOut returns the fee-adjusted output of swapping amountIn of tokenIn through pool.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	m := reserveMathPool.Get().(*reserveMath)
	defer reserveMathPool.Put(m)
	return m.amountOut(amountIn, tokenIn, tokenOut, pool)
}

// SimulateSwap returns the output of a swap and the pool state after it.
// The input pool is not modified.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, uniswapv2.Pool, error) {
	m := reserveMathPool.Get().(*reserveMath)
	defer reserveMathPool.Put(m)
	return m.simulateSwap(amountIn, tokenIn, tokenOut, pool)
}

func (m *reserveMath) amountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	if err := checkAmount(amountIn); err != nil {
		return nil, err
	}
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	// amountOut = reserveOut * amountIn * (10000 - fee) / (reserveIn * 10000 + amountIn * (10000 - fee))
	m.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	m.amountInWithFee.Mul(amountIn, m.feeMultiplier)
	m.numerator.Mul(reserveOut, m.amountInWithFee)
	m.denominator.Mul(reserveIn, basisPointDivisor)
	m.denominator.Add(m.denominator, m.amountInWithFee)
	if m.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}
	return new(big.Int).Div(m.numerator, m.denominator), nil
}

func (m *reserveMath) simulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, uniswapv2.Pool, error) {
	out, err := m.amountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}

	next := pool
	if tokenIn == pool.Token0 {
		m.newReserve0.Add(pool.Reserve0, amountIn)
		m.newReserve1.Sub(pool.Reserve1, out)
	} else {
		m.newReserve1.Add(pool.Reserve1, amountIn)
		m.newReserve0.Sub(pool.Reserve0, out)
	}
	next.Reserve0 = new(big.Int).Set(m.newReserve0)
	next.Reserve1 = new(big.Int).Set(m.newReserve1)
	return out, next, nil
}

// GetReserves orders the pair's reserves as (in, out).
func GetReserves(tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case tokenIn == pool.Token0 && tokenOut == pool.Token1:
		return pool.Reserve0, pool.Reserve1, nil
	case tokenIn == pool.Token1 && tokenOut == pool.Token0:
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}
