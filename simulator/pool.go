package simulator

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// The Curve-style pools are priced as a constant sum over 18-decimal
// normalized balances with a flat fee. That is enough to exercise the
// adapters' vectors, index handling and min-out checks without stableswap math.

var bpsDenominator = big.NewInt(10000)

// coinAt returns the token sitting at venue coin index.
func coinAt(desc engine.PoolDescriptor, index int) (common.Address, error) {
	if len(desc.TokenIndexes) == 0 {
		if index < 0 || index >= len(desc.UnderlyingTokens) {
			return common.Address{}, revert("coin index %d out of range", index)
		}
		return desc.UnderlyingTokens[index], nil
	}
	for i, idx := range desc.TokenIndexes {
		if idx == index && i < len(desc.UnderlyingTokens) {
			return desc.UnderlyingTokens[i], nil
		}
	}
	return common.Address{}, revert("coin index %d out of range", index)
}

func (l *Ledger) normalize(token common.Address, amount *big.Int) *big.Int {
	d := int(l.decimals[token])
	if d <= 18 {
		return new(big.Int).Mul(amount, pow10(18-d))
	}
	return new(big.Int).Div(amount, pow10(d-18))
}

func (l *Ledger) denormalize(token common.Address, value *big.Int) *big.Int {
	d := int(l.decimals[token])
	if d <= 18 {
		return new(big.Int).Div(value, pow10(18-d))
	}
	return new(big.Int).Mul(value, pow10(d-18))
}

func afterFee(value *big.Int, feeBps uint16) *big.Int {
	out := new(big.Int).Mul(value, big.NewInt(int64(10000-int(feeBps))))
	return out.Div(out, bpsDenominator)
}

// poolValue is the sum of the pool's normalized coin balances.
func (l *Ledger) poolValue(st *state, spec curveSpec) *big.Int {
	total := new(big.Int)
	for i := 0; i < spec.desc.CoinCount(); i++ {
		coin, err := coinAt(spec.desc, i)
		if err != nil {
			continue
		}
		total.Add(total, l.normalize(coin, st.balance(coin, spec.desc.Pool)))
	}
	return total
}

func (l *Ledger) mintAmount(st *state, spec curveSpec, amounts []*big.Int) (*big.Int, error) {
	if len(amounts) != spec.desc.CoinCount() {
		return nil, revert("%d amounts for a %d-coin pool", len(amounts), spec.desc.CoinCount())
	}
	value := new(big.Int)
	for i, a := range amounts {
		if a == nil || a.Sign() < 0 {
			return nil, revert("invalid amount at index %d", i)
		}
		coin, err := coinAt(spec.desc, i)
		if err != nil {
			return nil, err
		}
		value.Add(value, l.normalize(coin, a))
	}
	value = afterFee(value, spec.feeBps)

	supply := zeroIfNil(st.supply[spec.desc.LPToken])
	total := l.poolValue(st, spec)
	if supply.Sign() == 0 || total.Sign() == 0 {
		return value, nil
	}
	value.Mul(value, supply)
	return value.Div(value, total), nil
}

func (l *Ledger) withdrawOneAmount(st *state, spec curveSpec, lpAmount *big.Int, index int) (*big.Int, error) {
	if lpAmount == nil || lpAmount.Sign() < 0 {
		return nil, revert("invalid LP amount")
	}
	coin, err := coinAt(spec.desc, index)
	if err != nil {
		return nil, err
	}
	supply := zeroIfNil(st.supply[spec.desc.LPToken])
	if supply.Sign() == 0 {
		return nil, revert("pool %s has no LP supply", spec.desc.Pool.Hex())
	}
	value := new(big.Int).Mul(lpAmount, l.poolValue(st, spec))
	value.Div(value, supply)
	out := l.denormalize(coin, afterFee(value, spec.feeBps))
	if out.Cmp(st.balance(coin, spec.desc.Pool)) > 0 {
		return nil, revert("pool %s cannot pay %s of %s", spec.desc.Pool.Hex(), out, coin.Hex())
	}
	return out, nil
}

func (l *Ledger) swapAmount(st *state, spec curveSpec, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, revert("invalid swap amount")
	}
	if from == to || !spec.desc.HasToken(from) || !spec.desc.HasToken(to) {
		return nil, revert("pool %s cannot swap %s for %s", spec.desc.Pool.Hex(), from.Hex(), to.Hex())
	}
	out := l.denormalize(to, afterFee(l.normalize(from, amount), spec.feeBps))
	if out.Cmp(st.balance(to, spec.desc.Pool)) > 0 {
		return nil, revert("pool %s cannot pay %s of %s", spec.desc.Pool.Hex(), out, to.Hex())
	}
	return out, nil
}

// amountSlice flattens the fixed-size vector go-ethereum decodes uint256[N] into.
func amountSlice(v any) ([]*big.Int, error) {
	switch a := v.(type) {
	case [2]*big.Int:
		return a[:], nil
	case [3]*big.Int:
		return a[:], nil
	case [4]*big.Int:
		return a[:], nil
	case []*big.Int:
		return a, nil
	}
	return nil, fmt.Errorf("simulator: unexpected amounts type %T", v)
}
