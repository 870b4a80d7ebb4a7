package engine

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidAmount is returned when a requested amount is nil or negative.
var ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")

// DepositAmount caps requested at balance. A deposit never asks for more than
// the vault holds, so an oversized request deposits everything.
func DepositAmount(requested, balance *big.Int) (*big.Int, error) {
	if requested == nil || requested.Sign() < 0 {
		return nil, fmt.Errorf("%w: deposit amount %v", ErrInvalidAmount, requested)
	}
	if requested.Cmp(balance) > 0 {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int).Set(requested), nil
}

// WithdrawAmount rejects a request larger than balance.
func WithdrawAmount(requested, balance *big.Int) (*big.Int, error) {
	if requested == nil || requested.Sign() < 0 {
		return nil, fmt.Errorf("%w: withdraw amount %v", ErrInvalidAmount, requested)
	}
	if requested.Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: requested %s, balance %s", ErrInsufficientBalance, requested, balance)
	}
	return new(big.Int).Set(requested), nil
}
