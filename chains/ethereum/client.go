// Package ethereum implements every adapter read collaborator with
// eth_call against an EVM node.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/chains"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/curve"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/erc20"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNotConfigured is returned when a read needs a contract address the client was not given.
var ErrNotConfigured = errors.New("contract address not configured")

// Client reads chain state for the adapters. It keeps no cache: every method
// is one eth_call at the configured block.
type Client struct {
	caller    chains.ContractCaller
	logger    engine.Logger
	addresses chains.Addresses

	// nil means the latest block
	blockNumber *big.Int
	registerer  prometheus.Registerer
	metrics     *metrics
}

var _ chains.Readers = (*Client)(nil)

// Option configures the Client.
// The interface method is unexported to prevent external modification after NewClient.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(c *Client) {
	f(c)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// NewClient returns a Client reading through caller.
func NewClient(caller chains.ContractCaller, logger engine.Logger, addresses chains.Addresses, opts ...Option) (*Client, error) {
	if caller == nil {
		return nil, errors.New("ethereum: contract caller is required")
	}
	if logger == nil {
		return nil, errors.New("ethereum: logger is required")
	}
	c := &Client{
		caller:    caller,
		logger:    logger,
		addresses: addresses,
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	c.metrics = newMetrics(c.registerer)
	return c, nil
}

// GetOperator reads the operator from the role registry.
func (c *Client) GetOperator(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, c.addresses.RoleRegistry, "role registry", access.RegistryABI, "getOperator")
}

// GetRiskOperator reads the riskOperator from the role registry.
func (c *Client) GetRiskOperator(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, c.addresses.RoleRegistry, "role registry", access.RegistryABI, "getRiskOperator")
}

// GetTokenPrice reads the 18-decimal price of tokenA in tokenB.
func (c *Client) GetTokenPrice(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, error) {
	if c.addresses.PriceOracle == (common.Address{}) {
		return nil, fmt.Errorf("%w: price oracle", ErrNotConfigured)
	}
	return c.callBig(ctx, c.addresses.PriceOracle, uniswapv2.PriceOracleABI, "getTokenPrice", tokenA, tokenB)
}

// BalanceOf reads holder's balance of token.
func (c *Client) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return c.callBig(ctx, token, erc20.ABI, "balanceOf", holder)
}

// Decimals reads the token's decimals.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, erc20.ABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected result type %T", out[0])
	}
	return d, nil
}

// CalcTokenAmount quotes the LP minted (or burnt) for amounts. len(amounts) is the pool's coin count.
func (c *Client) CalcTokenAmount(ctx context.Context, pool common.Address, amounts []*big.Int, isDeposit bool) (*big.Int, error) {
	poolABI, err := curve.PoolABI(len(amounts))
	if err != nil {
		return nil, err
	}
	fixed, err := curve.FixedAmounts(amounts)
	if err != nil {
		return nil, err
	}
	return c.callBig(ctx, pool, poolABI, "calc_token_amount", fixed, isDeposit)
}

// CalcWithdrawOneCoin quotes the coin at index received for burning amount LP.
func (c *Client) CalcWithdrawOneCoin(ctx context.Context, pool common.Address, amount *big.Int, index int) (*big.Int, error) {
	// calc_withdraw_one_coin has the same signature for every coin count.
	poolABI, err := curve.PoolABI(2)
	if err != nil {
		return nil, err
	}
	return c.callBig(ctx, pool, poolABI, "calc_withdraw_one_coin", amount, big.NewInt(int64(index)))
}

// GetExchangeAmount quotes a swap through the registry exchange.
func (c *Client) GetExchangeAmount(ctx context.Context, pool, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if c.addresses.RegistryExchange == (common.Address{}) {
		return nil, fmt.Errorf("%w: registry exchange", ErrNotConfigured)
	}
	return c.callBig(ctx, c.addresses.RegistryExchange, curve.RegistryExchangeABI, "get_exchange_amount", pool, from, to, amount)
}

// --- call helpers ---

func (c *Client) callAddress(ctx context.Context, to common.Address, name string, parsed abi.ABI, method string) (common.Address, error) {
	if to == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	out, err := c.call(ctx, to, parsed, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected result type %T", method, out[0])
	}
	return addr, nil
}

func (c *Client) callBig(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, to, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, out[0])
	}
	return n, nil
}

// call packs method, runs it with eth_call and unpacks a non-empty result.
func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	timer := c.metrics.timer(method)
	defer timer.ObserveDuration()

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, c.blockNumber)
	if err != nil {
		c.metrics.failed(method)
		c.logger.Debug("Contract call failed", "method", method, "to", to, "error", err)
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		c.metrics.failed(method)
		return nil, fmt.Errorf("failed to unpack %s from %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		c.metrics.failed(method)
		return nil, fmt.Errorf("%s on %s: empty result", method, to.Hex())
	}
	return out, nil
}

// --- Options ---

// WithBlockNumber pins every read to block n.
func WithBlockNumber(n *big.Int) Option {
	return newOption(func(c *Client) {
		if n != nil {
			c.blockNumber = new(big.Int).Set(n)
		}
	})
}

// WithPrometheusRegisterer registers the client's call metrics on reg.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return newOption(func(c *Client) {
		c.registerer = reg
	})
}
