// Package adapter implements engine.Adapter for Uniswap-V2-style routers,
// pricing from an external oracle instead of pair reserves.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/erc20"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-exchange-adapters-go/slippage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the required collaborators of an Adapter.
type Config struct {
	// Name labels metrics and logs, e.g. "uniswapv2" or "sushiswap".
	Name     string
	Router   common.Address
	Pools    poolregistry.Lookup
	Oracle   uniswapv2.PriceOracle
	Tokens   erc20.TokenReader
	Registry access.Registry
	Logger   engine.Logger
}

func (c *Config) validate() error {
	if c.Name == "" {
		return errors.New("config: Name is required")
	}
	if c.Router == (common.Address{}) {
		return errors.New("config: Router is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.Oracle == nil {
		return errors.New("config: Oracle is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Option configures optional parts of the Adapter.
type Option interface {
	apply(*options)
}

type options struct {
	registerer      prometheus.Registerer
	initialSlippage []slippage.Entry
}

type funcOption func(*options)

func (f funcOption) apply(o *options) {
	f(o)
}

// WithPrometheusRegisterer registers the adapter's metrics on reg.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return funcOption(func(o *options) {
		o.registerer = reg
	})
}

// WithInitialSlippage seeds the slippage store at construction.
func WithInitialSlippage(entries []slippage.Entry) Option {
	return funcOption(func(o *options) {
		o.initialSlippage = entries
	})
}

// Adapter compiles swaps through one router. Read paths hold no state;
// the slippage store is the only mutable part.
type Adapter struct {
	name     string
	router   common.Address
	pools    poolregistry.Lookup
	oracle   uniswapv2.PriceOracle
	tokens   erc20.TokenReader
	slippage *slippage.Store
	logger   engine.Logger
	metrics  *engine.Metrics
}

var _ engine.Adapter = (*Adapter)(nil)

// NewAdapter validates cfg and builds an Adapter.
func NewAdapter(cfg Config, opts ...Option) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt.apply(o)
	}

	guard, err := access.NewGuard(cfg.Registry)
	if err != nil {
		return nil, err
	}
	store, err := slippage.NewStore(guard, o.initialSlippage)
	if err != nil {
		return nil, fmt.Errorf("failed to create slippage store: %w", err)
	}

	return &Adapter{
		name:     cfg.Name,
		router:   cfg.Router,
		pools:    cfg.Pools,
		oracle:   cfg.Oracle,
		tokens:   cfg.Tokens,
		slippage: store,
		logger:   cfg.Logger,
		metrics:  engine.NewMetrics(o.registerer, cfg.Name),
	}, nil
}

// Name returns the venue label.
func (a *Adapter) Name() string {
	return a.name
}

// Router returns the router every compiled swap targets.
func (a *Adapter) Router() common.Address {
	return a.router
}

// --- Configuration ---

// SetLiquidityPoolToWantTokenToSlippage stores tolerances. Only the riskOperator may call it.
func (a *Adapter) SetLiquidityPoolToWantTokenToSlippage(ctx context.Context, caller common.Address, entries []slippage.Entry) error {
	err := a.slippage.Set(ctx, caller, entries)
	a.metrics.ConfigMutation("setLiquidityPoolToWantTokenToSlippage", err)
	if err != nil {
		a.logger.Warn("Rejected slippage update", "venue", a.name, "caller", caller, "error", err)
		return fmt.Errorf("setLiquidityPoolToWantTokenToSlippage: %w", err)
	}
	a.logger.Info("Slippage updated", "venue", a.name, "caller", caller, "entries", len(entries))
	return nil
}

// LiquidityPoolToWantTokenToSlippage returns the tolerance in bps, 0 when unset.
func (a *Adapter) LiquidityPoolToWantTokenToSlippage(pool, want common.Address) uint16 {
	return a.slippage.Get(pool, want)
}

// --- Pricing ---

// CalculateAmountInLPToken prices inputAmount of inputToken in outputToken.
// A swap venue has no LP token; the output token plays its role.
func (a *Adapter) CalculateAmountInLPToken(ctx context.Context, inputToken, pool, outputToken common.Address, inputAmount *big.Int) (*big.Int, error) {
	defer a.metrics.QuoteTimer("calculate_amount_in_lp_token").ObserveDuration()
	if _, err := a.resolvePair(pool, inputToken, outputToken); err != nil {
		return nil, err
	}
	return a.quote(ctx, inputToken, outputToken, inputAmount)
}

// GetSomeAmountInToken prices lpTokenAmount of outputToken back in inputToken.
func (a *Adapter) GetSomeAmountInToken(ctx context.Context, inputToken, pool, outputToken common.Address, lpTokenAmount *big.Int) (*big.Int, error) {
	defer a.metrics.QuoteTimer("get_some_amount_in_token").ObserveDuration()
	if _, err := a.resolvePair(pool, inputToken, outputToken); err != nil {
		return nil, err
	}
	return a.quote(ctx, outputToken, inputToken, lpTokenAmount)
}

// GetLiquidityPoolTokenBalance is the holder's balance of outputToken.
func (a *Adapter) GetLiquidityPoolTokenBalance(ctx context.Context, holder, inputToken, pool, outputToken common.Address) (*big.Int, error) {
	if _, err := a.resolvePair(pool, inputToken, outputToken); err != nil {
		return nil, err
	}
	balance, err := a.tokens.BalanceOf(ctx, outputToken, holder)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", outputToken.Hex(), err)
	}
	return balance, nil
}

// GetAllAmountInToken prices the holder's whole outputToken balance in inputToken.
func (a *Adapter) GetAllAmountInToken(ctx context.Context, holder, inputToken, pool, outputToken common.Address) (*big.Int, error) {
	balance, err := a.GetLiquidityPoolTokenBalance(ctx, holder, inputToken, pool, outputToken)
	if err != nil {
		return nil, err
	}
	return a.GetSomeAmountInToken(ctx, inputToken, pool, outputToken, balance)
}

// quote converts amount of from into to at the oracle price.
func (a *Adapter) quote(ctx context.Context, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return nil, calculator.ErrNilAmount
	}
	if amount.Sign() < 0 {
		return nil, calculator.ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}

	price, err := a.oracle.GetTokenPrice(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("getTokenPrice %s/%s: %w", from.Hex(), to.Hex(), err)
	}
	decimalsIn, err := a.tokens.Decimals(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("decimals %s: %w", from.Hex(), err)
	}
	decimalsOut, err := a.tokens.Decimals(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("decimals %s: %w", to.Hex(), err)
	}
	return calculator.AmountOutAtPrice(amount, price, decimalsIn, decimalsOut)
}

// --- Codes ---

// GetDepositAllCodes swaps the vault's whole inputToken balance into outputToken.
func (a *Adapter) GetDepositAllCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address) (engine.Codes, error) {
	return a.depositCodes(ctx, "deposit_all", vault, inputToken, pool, outputToken, nil)
}

// GetDepositSomeCodes swaps min(amount, balance) of inputToken into outputToken.
func (a *Adapter) GetDepositSomeCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: deposit amount is nil", engine.ErrInvalidAmount)
	}
	return a.depositCodes(ctx, "deposit_some", vault, inputToken, pool, outputToken, amount)
}

// GetWithdrawAllCodes swaps the vault's whole outputToken balance back into inputToken.
func (a *Adapter) GetWithdrawAllCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address) (engine.Codes, error) {
	return a.withdrawCodes(ctx, "withdraw_all", vault, inputToken, pool, outputToken, nil)
}

// GetWithdrawSomeCodes swaps amount of outputToken back into inputToken.
func (a *Adapter) GetWithdrawSomeCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: withdraw amount is nil", engine.ErrInvalidAmount)
	}
	return a.withdrawCodes(ctx, "withdraw_some", vault, inputToken, pool, outputToken, amount)
}

// CanStake is always false; swap venues have nothing to stake.
func (a *Adapter) CanStake(pool common.Address) bool {
	return false
}

// depositCodes compiles a deposit. A nil amount means the whole balance.
func (a *Adapter) depositCodes(ctx context.Context, op string, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	desc, err := a.resolvePair(pool, inputToken, outputToken)
	if err != nil {
		return nil, err
	}
	if desc.Deprecated {
		return nil, fmt.Errorf("%w: %s", engine.ErrPoolDeprecated, pool.Hex())
	}

	balance, err := a.tokens.BalanceOf(ctx, inputToken, vault)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", inputToken.Hex(), err)
	}
	if amount == nil {
		amount = balance
	}
	amount, err = engine.DepositAmount(amount, balance)
	if err != nil {
		return nil, err
	}

	return a.swapCodes(ctx, op, vault, pool, inputToken, outputToken, amount, outputToken)
}

// withdrawCodes compiles a withdrawal. A nil amount means the whole balance.
func (a *Adapter) withdrawCodes(ctx context.Context, op string, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	if _, err := a.resolvePair(pool, inputToken, outputToken); err != nil {
		return nil, err
	}

	balance, err := a.tokens.BalanceOf(ctx, outputToken, vault)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", outputToken.Hex(), err)
	}
	if amount == nil {
		amount = balance
	}
	amount, err = engine.WithdrawAmount(amount, balance)
	if err != nil {
		return nil, err
	}

	return a.swapCodes(ctx, op, vault, pool, outputToken, inputToken, amount, inputToken)
}

// swapCodes compiles approve(0), approve(amount), swap for from -> to.
// want selects the slippage entry that bounds the output.
func (a *Adapter) swapCodes(ctx context.Context, op string, vault, pool, from, to common.Address, amount *big.Int, want common.Address) (engine.Codes, error) {
	if amount.Sign() == 0 {
		return engine.Codes{}, nil
	}

	estimate, err := a.quote(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	minOut, err := slippage.ApplyTolerance(estimate, a.slippage.Get(pool, want))
	if err != nil {
		return nil, err
	}

	codes, err := erc20.ApprovalCodes(from, a.router, amount)
	if err != nil {
		return nil, err
	}
	payload, err := uniswapv2.RouterABI.Pack("swapExactTokensForTokens", amount, minOut, []common.Address{from, to}, vault, uniswapv2.NoDeadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactTokensForTokens: %w", err)
	}
	codes = append(codes, engine.Instruction{Target: a.router, Payload: payload})

	a.metrics.CodesGenerated(op)
	a.logger.Debug("Compiled swap", "venue", a.name, "operation", op, "pool", pool, "from", from, "to", to, "amount", amount, "minOut", minOut, "instructions", len(codes))
	return codes, nil
}

// resolvePair loads the pool descriptor and checks both tokens belong to it.
func (a *Adapter) resolvePair(pool, inputToken, outputToken common.Address) (engine.PoolDescriptor, error) {
	desc, err := poolregistry.Resolve(a.pools, pool)
	if err != nil {
		return engine.PoolDescriptor{}, err
	}
	if inputToken == outputToken {
		return engine.PoolDescriptor{}, fmt.Errorf("%w: input and output are both %s", engine.ErrTokenMismatch, inputToken.Hex())
	}
	for _, token := range []common.Address{inputToken, outputToken} {
		if !desc.HasToken(token) {
			return engine.PoolDescriptor{}, fmt.Errorf("%w: token %s is not in pool %s", engine.ErrTokenMismatch, token.Hex(), pool.Hex())
		}
	}
	return desc, nil
}
