package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/nativeasset"
	"github.com/ethereum/go-ethereum/common"
)

// Gateway decides when a call must go through the native-asset gateway and
// compiles the gateway calls. Callers only ever hold the wrapped token.
type Gateway struct {
	address       common.Address
	wrappedNative common.Address
	pools         *nativeasset.PoolSet
}

// NewGateway returns a router for the gateway at address.
func NewGateway(address, wrappedNative common.Address, pools *nativeasset.PoolSet) (*Gateway, error) {
	if address == (common.Address{}) {
		return nil, errors.New("curve: gateway address is required")
	}
	if wrappedNative == (common.Address{}) {
		return nil, errors.New("curve: wrapped native token is required")
	}
	if pools == nil {
		return nil, errors.New("curve: native-asset pool set is required")
	}
	return &Gateway{address: address, wrappedNative: wrappedNative, pools: pools}, nil
}

// Address is the gateway contract, also the spender on routed paths.
func (g *Gateway) Address() common.Address {
	return g.address
}

// WrappedNative is the ERC-20 form of the native asset.
func (g *Gateway) WrappedNative() common.Address {
	return g.wrappedNative
}

// Pools is the set of flagged pools.
func (g *Gateway) Pools() *nativeasset.PoolSet {
	return g.pools
}

// RoutesPool reports whether pool is flagged as a native-asset pool.
func (g *Gateway) RoutesPool(pool common.Address) bool {
	return g.pools.Contains(pool)
}

// RoutesLiquidity reports whether a deposit of coin into pool, or a
// withdrawal from pool into coin, goes through the gateway. Only the wrapped
// native leg of a flagged pool is routed; other coins go to the pool.
func (g *Gateway) RoutesLiquidity(pool, coin common.Address) bool {
	return coin == g.wrappedNative && g.RoutesPool(pool)
}

// RoutesSwap reports whether a swap between from and to goes through the
// gateway: one side must be the wrapped native token and either the pool or
// the exchange must be flagged.
func (g *Gateway) RoutesSwap(exchange, pool, from, to common.Address) bool {
	if from != g.wrappedNative && to != g.wrappedNative {
		return false
	}
	return g.pools.Contains(pool) || g.pools.Contains(exchange)
}

// Native swaps the wrapped native token for the NativeAsset placeholder.
func (g *Gateway) Native(token common.Address) common.Address {
	if token == g.wrappedNative {
		return NativeAsset
	}
	return token
}

// DepositETH compiles a gateway deposit of amounts into pool, minting at least minMint LP to vault.
func (g *Gateway) DepositETH(vault common.Address, desc engine.PoolDescriptor, amounts []*big.Int, index int, minMint *big.Int) (engine.Instruction, error) {
	return g.pack("depositETH", vault, desc.Pool, desc.LPToken, amounts, big.NewInt(int64(index)), minMint)
}

// WithdrawETH compiles a gateway withdrawal of amount LP into the coin at index.
func (g *Gateway) WithdrawETH(vault common.Address, desc engine.PoolDescriptor, amount *big.Int, index int, minAmount *big.Int) (engine.Instruction, error) {
	return g.pack("withdrawETH", vault, desc.Pool, desc.LPToken, amount, big.NewInt(int64(index)), minAmount)
}

// ExchangeETH compiles a gateway swap. from and to are given in wrapped form.
func (g *Gateway) ExchangeETH(vault, pool, from, to common.Address, amount, expected *big.Int) (engine.Instruction, error) {
	return g.pack("exchangeETH", vault, pool, from, to, amount, expected)
}

func (g *Gateway) pack(method string, args ...any) (engine.Instruction, error) {
	payload, err := GatewayABI.Pack(method, args...)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return engine.Instruction{Target: g.address, Payload: payload}, nil
}
