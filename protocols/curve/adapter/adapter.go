// Package adapter implements engine.Adapter for Curve pools. Deposits into a
// pool's LP token go through the pool itself; swaps between two coins of a
// pool go through the registry exchange; native-asset pools go through the gateway.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/nativeasset"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/curve"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/erc20"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	"github.com/defistate/defistate-exchange-adapters-go/slippage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the required collaborators of an Adapter.
type Config struct {
	Name             string
	RegistryExchange common.Address
	Gateway          common.Address
	WrappedNative    common.Address
	Pools            poolregistry.Lookup
	PoolReader       curve.PoolReader
	ExchangeReader   curve.ExchangeReader
	Tokens           erc20.TokenReader
	Registry         access.Registry
	Logger           engine.Logger
}

func (c *Config) validate() error {
	if c.Name == "" {
		return errors.New("config: Name is required")
	}
	if c.RegistryExchange == (common.Address{}) {
		return errors.New("config: RegistryExchange is required")
	}
	if c.Gateway == (common.Address{}) {
		return errors.New("config: Gateway is required")
	}
	if c.WrappedNative == (common.Address{}) {
		return errors.New("config: WrappedNative is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.PoolReader == nil {
		return errors.New("config: PoolReader is required")
	}
	if c.ExchangeReader == nil {
		return errors.New("config: ExchangeReader is required")
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
	nativePools     []common.Address
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

// WithNativeAssetPools seeds the gateway's pool set at construction.
func WithNativeAssetPools(pools []common.Address) Option {
	return funcOption(func(o *options) {
		o.nativePools = pools
	})
}

// Adapter compiles Curve deposits, withdrawals and swaps.
type Adapter struct {
	name     string
	exchange common.Address
	pools    poolregistry.Lookup
	reader   curve.PoolReader
	quoter   curve.ExchangeReader
	tokens   erc20.TokenReader
	gateway  *curve.Gateway
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
	nativePools, err := nativeasset.NewPoolSet(guard, o.nativePools)
	if err != nil {
		return nil, fmt.Errorf("failed to create native-asset pool set: %w", err)
	}
	gateway, err := curve.NewGateway(cfg.Gateway, cfg.WrappedNative, nativePools)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		name:     cfg.Name,
		exchange: cfg.RegistryExchange,
		pools:    cfg.Pools,
		reader:   cfg.PoolReader,
		quoter:   cfg.ExchangeReader,
		tokens:   cfg.Tokens,
		gateway:  gateway,
		slippage: store,
		logger:   cfg.Logger,
		metrics:  engine.NewMetrics(o.registerer, cfg.Name),
	}, nil
}

// Name returns the venue label.
func (a *Adapter) Name() string {
	return a.name
}

// --- Configuration ---

// SetLiquidityPoolToWantTokenToSlippage stores tolerances. Only the riskOperator may call it.
func (a *Adapter) SetLiquidityPoolToWantTokenToSlippage(ctx context.Context, caller common.Address, entries []slippage.Entry) error {
	err := a.slippage.Set(ctx, caller, entries)
	return a.recordMutation("setLiquidityPoolToWantTokenToSlippage", caller, len(entries), err)
}

// LiquidityPoolToWantTokenToSlippage returns the tolerance in bps, 0 when unset.
func (a *Adapter) LiquidityPoolToWantTokenToSlippage(pool, want common.Address) uint16 {
	return a.slippage.Get(pool, want)
}

// SetEthPools flags pools as native-asset pools. Only the operator may call it.
func (a *Adapter) SetEthPools(ctx context.Context, caller common.Address, pools []common.Address) error {
	err := a.gateway.Pools().Add(ctx, caller, pools)
	return a.recordMutation("setEthPools", caller, len(pools), err)
}

// UnsetEthPools unflags pools. Only the operator may call it.
func (a *Adapter) UnsetEthPools(ctx context.Context, caller common.Address, pools []common.Address) error {
	err := a.gateway.Pools().Remove(ctx, caller, pools)
	return a.recordMutation("unsetEthPools", caller, len(pools), err)
}

// IsNativeAssetPool reports whether pool is routed through the gateway.
func (a *Adapter) IsNativeAssetPool(pool common.Address) bool {
	return a.gateway.RoutesPool(pool)
}

// NativeAssetPools lists the flagged pools.
func (a *Adapter) NativeAssetPools() []common.Address {
	return a.gateway.Pools().Pools()
}

func (a *Adapter) recordMutation(setter string, caller common.Address, size int, err error) error {
	a.metrics.ConfigMutation(setter, err)
	if err != nil {
		a.logger.Warn("Rejected configuration change", "venue", a.name, "setter", setter, "caller", caller, "error", err)
		return fmt.Errorf("%s: %w", setter, err)
	}
	a.logger.Info("Configuration changed", "venue", a.name, "setter", setter, "caller", caller, "size", size)
	return nil
}

// --- Pricing ---

// CalculateAmountInLPToken quotes inputAmount of inputToken in outputToken.
// When outputToken is the pool's LP token this is a virtual deposit;
// otherwise it is a registry-exchange swap quote.
func (a *Adapter) CalculateAmountInLPToken(ctx context.Context, inputToken, pool, outputToken common.Address, inputAmount *big.Int) (*big.Int, error) {
	defer a.metrics.QuoteTimer("calculate_amount_in_lp_token").ObserveDuration()
	desc, lpPath, err := a.resolve(pool, inputToken, outputToken)
	if err != nil {
		return nil, err
	}
	return a.quoteForward(ctx, desc, lpPath, inputToken, outputToken, inputAmount)
}

// GetSomeAmountInToken quotes lpTokenAmount of outputToken back in inputToken.
func (a *Adapter) GetSomeAmountInToken(ctx context.Context, inputToken, pool, outputToken common.Address, lpTokenAmount *big.Int) (*big.Int, error) {
	defer a.metrics.QuoteTimer("get_some_amount_in_token").ObserveDuration()
	desc, lpPath, err := a.resolve(pool, inputToken, outputToken)
	if err != nil {
		return nil, err
	}
	return a.quoteInverse(ctx, desc, lpPath, inputToken, outputToken, lpTokenAmount)
}

// GetLiquidityPoolTokenBalance is the holder's balance of outputToken, the LP token on the LP path.
func (a *Adapter) GetLiquidityPoolTokenBalance(ctx context.Context, holder, inputToken, pool, outputToken common.Address) (*big.Int, error) {
	if _, _, err := a.resolve(pool, inputToken, outputToken); err != nil {
		return nil, err
	}
	return a.balanceOf(ctx, outputToken, holder)
}

// GetAllAmountInToken quotes the holder's whole outputToken balance in inputToken.
func (a *Adapter) GetAllAmountInToken(ctx context.Context, holder, inputToken, pool, outputToken common.Address) (*big.Int, error) {
	balance, err := a.GetLiquidityPoolTokenBalance(ctx, holder, inputToken, pool, outputToken)
	if err != nil {
		return nil, err
	}
	return a.GetSomeAmountInToken(ctx, inputToken, pool, outputToken, balance)
}

func (a *Adapter) quoteForward(ctx context.Context, desc engine.PoolDescriptor, lpPath bool, inputToken, outputToken common.Address, amount *big.Int) (*big.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	if !lpPath {
		return a.exchangeQuote(ctx, desc.Pool, inputToken, outputToken, amount)
	}

	shape, err := a.shapeOf(desc, inputToken)
	if err != nil {
		return nil, err
	}
	amounts, err := shape.Amounts(amount)
	if err != nil {
		return nil, err
	}
	out, err := a.reader.CalcTokenAmount(ctx, desc.Pool, amounts, true)
	if err != nil {
		return nil, fmt.Errorf("calc_token_amount %s: %w", desc.Pool.Hex(), err)
	}
	return out, nil
}

func (a *Adapter) quoteInverse(ctx context.Context, desc engine.PoolDescriptor, lpPath bool, inputToken, outputToken common.Address, amount *big.Int) (*big.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	if !lpPath {
		return a.exchangeQuote(ctx, desc.Pool, outputToken, inputToken, amount)
	}

	shape, err := a.shapeOf(desc, inputToken)
	if err != nil {
		return nil, err
	}
	out, err := a.reader.CalcWithdrawOneCoin(ctx, desc.Pool, amount, shape.Index())
	if err != nil {
		return nil, fmt.Errorf("calc_withdraw_one_coin %s: %w", desc.Pool.Hex(), err)
	}
	return out, nil
}

// exchangeQuote asks the registry exchange, which prices the wrapped native
// token under the native-asset placeholder on either side.
func (a *Adapter) exchangeQuote(ctx context.Context, pool, from, to common.Address, amount *big.Int) (*big.Int, error) {
	out, err := a.quoter.GetExchangeAmount(ctx, pool, a.gateway.Native(from), a.gateway.Native(to), amount)
	if err != nil {
		return nil, fmt.Errorf("get_exchange_amount %s: %w", pool.Hex(), err)
	}
	return out, nil
}

// --- Codes ---

// GetDepositAllCodes deposits or swaps the vault's whole inputToken balance.
func (a *Adapter) GetDepositAllCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address) (engine.Codes, error) {
	return a.depositCodes(ctx, "deposit_all", vault, inputToken, pool, outputToken, nil)
}

// GetDepositSomeCodes deposits or swaps min(amount, balance) of inputToken.
func (a *Adapter) GetDepositSomeCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: deposit amount is nil", engine.ErrInvalidAmount)
	}
	return a.depositCodes(ctx, "deposit_some", vault, inputToken, pool, outputToken, amount)
}

// GetWithdrawAllCodes redeems the vault's whole outputToken balance into inputToken.
func (a *Adapter) GetWithdrawAllCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address) (engine.Codes, error) {
	return a.withdrawCodes(ctx, "withdraw_all", vault, inputToken, pool, outputToken, nil)
}

// GetWithdrawSomeCodes redeems amount of outputToken into inputToken.
func (a *Adapter) GetWithdrawSomeCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: withdraw amount is nil", engine.ErrInvalidAmount)
	}
	return a.withdrawCodes(ctx, "withdraw_some", vault, inputToken, pool, outputToken, amount)
}

// CanStake is always false; staking goes through a separate adapter.
func (a *Adapter) CanStake(pool common.Address) bool {
	return false
}

func (a *Adapter) depositCodes(ctx context.Context, op string, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	desc, lpPath, err := a.resolve(pool, inputToken, outputToken)
	if err != nil {
		return nil, err
	}
	if desc.Deprecated {
		return nil, fmt.Errorf("%w: %s", engine.ErrPoolDeprecated, pool.Hex())
	}

	balance, err := a.balanceOf(ctx, inputToken, vault)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = balance
	}
	if amount, err = engine.DepositAmount(amount, balance); err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return engine.Codes{}, nil
	}

	estimate, err := a.quoteForward(ctx, desc, lpPath, inputToken, outputToken, amount)
	if err != nil {
		return nil, err
	}
	minOut, err := slippage.ApplyTolerance(estimate, a.slippage.Get(pool, outputToken))
	if err != nil {
		return nil, err
	}

	var (
		spender common.Address
		call    engine.Instruction
	)
	switch {
	case lpPath:
		spender, call, err = a.addLiquidityCall(vault, desc, inputToken, amount, minOut)
	case a.gateway.RoutesSwap(a.exchange, pool, inputToken, outputToken):
		spender = a.gateway.Address()
		call, err = a.gateway.ExchangeETH(vault, pool, inputToken, outputToken, amount, minOut)
	default:
		spender = a.exchange
		call, err = a.exchangeCall(vault, pool, inputToken, outputToken, amount, minOut)
	}
	if err != nil {
		return nil, err
	}

	codes, err := erc20.ApprovalCodes(inputToken, spender, amount)
	if err != nil {
		return nil, err
	}
	return a.finish(op, pool, append(codes, call), "amount", amount, "minOut", minOut), nil
}

func (a *Adapter) withdrawCodes(ctx context.Context, op string, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (engine.Codes, error) {
	desc, lpPath, err := a.resolve(pool, inputToken, outputToken)
	if err != nil {
		return nil, err
	}

	balance, err := a.balanceOf(ctx, outputToken, vault)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = balance
	}
	if amount, err = engine.WithdrawAmount(amount, balance); err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return engine.Codes{}, nil
	}

	estimate, err := a.quoteInverse(ctx, desc, lpPath, inputToken, outputToken, amount)
	if err != nil {
		return nil, err
	}
	minOut, err := slippage.ApplyTolerance(estimate, a.slippage.Get(pool, inputToken))
	if err != nil {
		return nil, err
	}

	var codes engine.Codes
	switch {
	case lpPath && a.gateway.RoutesLiquidity(pool, inputToken):
		codes, err = a.withdrawETHCodes(vault, desc, inputToken, amount, minOut)
	case lpPath:
		codes, err = a.removeLiquidityCodes(desc, inputToken, amount, minOut)
	default:
		codes, err = a.reverseSwapCodes(vault, pool, outputToken, inputToken, amount, minOut)
	}
	if err != nil {
		return nil, err
	}
	return a.finish(op, pool, codes, "amount", amount, "minOut", minOut), nil
}

// addLiquidityCall returns the spender and the call for an LP deposit.
func (a *Adapter) addLiquidityCall(vault common.Address, desc engine.PoolDescriptor, inputToken common.Address, amount, minMint *big.Int) (common.Address, engine.Instruction, error) {
	shape, err := a.shapeOf(desc, inputToken)
	if err != nil {
		return common.Address{}, engine.Instruction{}, err
	}
	amounts, err := shape.Amounts(amount)
	if err != nil {
		return common.Address{}, engine.Instruction{}, err
	}

	if a.gateway.RoutesLiquidity(desc.Pool, inputToken) {
		call, err := a.gateway.DepositETH(vault, desc, amounts, shape.Index(), minMint)
		return a.gateway.Address(), call, err
	}

	poolABI, err := curve.PoolABI(shape.CoinCount())
	if err != nil {
		return common.Address{}, engine.Instruction{}, err
	}
	fixed, err := curve.FixedAmounts(amounts)
	if err != nil {
		return common.Address{}, engine.Instruction{}, err
	}
	payload, err := poolABI.Pack("add_liquidity", fixed, minMint)
	if err != nil {
		return common.Address{}, engine.Instruction{}, fmt.Errorf("failed to pack add_liquidity: %w", err)
	}
	return desc.Pool, engine.Instruction{Target: desc.Pool, Payload: payload}, nil
}

// removeLiquidityCodes burns the vault's LP directly; the pool needs no allowance.
func (a *Adapter) removeLiquidityCodes(desc engine.PoolDescriptor, inputToken common.Address, amount, minAmount *big.Int) (engine.Codes, error) {
	shape, err := a.shapeOf(desc, inputToken)
	if err != nil {
		return nil, err
	}
	poolABI, err := curve.PoolABI(shape.CoinCount())
	if err != nil {
		return nil, err
	}
	payload, err := poolABI.Pack("remove_liquidity_one_coin", amount, big.NewInt(int64(shape.Index())), minAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack remove_liquidity_one_coin: %w", err)
	}
	return engine.Codes{{Target: desc.Pool, Payload: payload}}, nil
}

func (a *Adapter) withdrawETHCodes(vault common.Address, desc engine.PoolDescriptor, inputToken common.Address, amount, minAmount *big.Int) (engine.Codes, error) {
	shape, err := a.shapeOf(desc, inputToken)
	if err != nil {
		return nil, err
	}
	call, err := a.gateway.WithdrawETH(vault, desc, amount, shape.Index(), minAmount)
	if err != nil {
		return nil, err
	}
	codes, err := erc20.ApprovalCodes(desc.LPToken, a.gateway.Address(), amount)
	if err != nil {
		return nil, err
	}
	return append(codes, call), nil
}

func (a *Adapter) reverseSwapCodes(vault, pool, from, to common.Address, amount, minOut *big.Int) (engine.Codes, error) {
	var (
		spender common.Address
		call    engine.Instruction
		err     error
	)
	if a.gateway.RoutesSwap(a.exchange, pool, from, to) {
		spender = a.gateway.Address()
		call, err = a.gateway.ExchangeETH(vault, pool, from, to, amount, minOut)
	} else {
		spender = a.exchange
		call, err = a.exchangeCall(vault, pool, from, to, amount, minOut)
	}
	if err != nil {
		return nil, err
	}
	codes, err := erc20.ApprovalCodes(from, spender, amount)
	if err != nil {
		return nil, err
	}
	return append(codes, call), nil
}

func (a *Adapter) exchangeCall(vault, pool, from, to common.Address, amount, expected *big.Int) (engine.Instruction, error) {
	payload, err := curve.RegistryExchangeABI.Pack("exchange", pool, from, to, amount, expected, vault)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("failed to pack exchange: %w", err)
	}
	return engine.Instruction{Target: a.exchange, Payload: payload}, nil
}

func (a *Adapter) finish(op string, pool common.Address, codes engine.Codes, args ...any) engine.Codes {
	a.metrics.CodesGenerated(op)
	a.logger.Debug("Compiled codes", append([]any{"venue", a.name, "operation", op, "pool", pool, "instructions", len(codes)}, args...)...)
	return codes
}

// --- Helpers ---

// resolve loads the pool descriptor and reports whether the call is on the
// LP path (outputToken is the pool's LP token) or the swap path.
func (a *Adapter) resolve(pool, inputToken, outputToken common.Address) (engine.PoolDescriptor, bool, error) {
	desc, err := poolregistry.Resolve(a.pools, pool)
	if err != nil {
		return engine.PoolDescriptor{}, false, err
	}
	if !desc.HasToken(inputToken) {
		return engine.PoolDescriptor{}, false, fmt.Errorf("%w: token %s is not in pool %s", engine.ErrTokenMismatch, inputToken.Hex(), pool.Hex())
	}
	if desc.HasLPToken() && outputToken == desc.LPToken {
		return desc, true, nil
	}
	if outputToken == inputToken || !desc.HasToken(outputToken) {
		if owner, ok := a.pools.GetByLPToken(outputToken); ok {
			return engine.PoolDescriptor{}, false, fmt.Errorf("%w: %s is the LP token of pool %s, not of pool %s", engine.ErrTokenMismatch, outputToken.Hex(), owner.Pool.Hex(), pool.Hex())
		}
		return engine.PoolDescriptor{}, false, fmt.Errorf("%w: token %s is neither the LP token nor another coin of pool %s", engine.ErrTokenMismatch, outputToken.Hex(), pool.Hex())
	}
	return desc, false, nil
}

func (a *Adapter) shapeOf(desc engine.PoolDescriptor, token common.Address) (curve.PoolShape, error) {
	index, err := desc.CoinIndex(token)
	if err != nil {
		return curve.ShapeUnsupported, err
	}
	return curve.ShapeOf(desc.CoinCount(), index)
}

func (a *Adapter) balanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	balance, err := a.tokens.BalanceOf(ctx, token, holder)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return balance, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", engine.ErrInvalidAmount, amount)
	}
	return nil
}
