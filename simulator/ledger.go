// Package simulator executes compiled Codes against an in-memory ledger of
// token balances, constant-product pairs and Curve-style pools. The same
// ledger serves every read collaborator the adapters need, so a dry run sees
// the effects of the instructions executed before it.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-exchange-adapters-go/chains"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/curve"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrReverted is returned when an instruction would revert on chain.
	ErrReverted = errors.New("execution reverted")
	// ErrUnknownToken is returned for a token the ledger was not told about.
	ErrUnknownToken = errors.New("unknown token")
)

func revert(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrReverted, fmt.Sprintf(format, args...))
}

// Config names the ledger's privileged accounts and fixed contracts.
type Config struct {
	Operator         common.Address
	RiskOperator     common.Address
	RegistryExchange common.Address
	Gateway          common.Address
	WrappedNative    common.Address
	Logger           engine.Logger
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Gateway != (common.Address{}) && c.WrappedNative == (common.Address{}) {
		return errors.New("config: WrappedNative is required when Gateway is set")
	}
	return nil
}

type pairSpec struct {
	address        common.Address
	token0, token1 common.Address
	feeBps         uint16
}

type curveSpec struct {
	desc   engine.PoolDescriptor
	feeBps uint16
}

// state is everything Execute may change. Stored *big.Int values are never
// mutated in place, so a shallow copy of the maps is a full snapshot.
type state struct {
	balances   map[[2]common.Address]*big.Int // (token, holder)
	allowances map[[3]common.Address]*big.Int // (token, owner, spender)
	supply     map[common.Address]*big.Int
}

func newState() *state {
	return &state{
		balances:   make(map[[2]common.Address]*big.Int),
		allowances: make(map[[3]common.Address]*big.Int),
		supply:     make(map[common.Address]*big.Int),
	}
}

func (s *state) clone() *state {
	next := &state{
		balances:   make(map[[2]common.Address]*big.Int, len(s.balances)),
		allowances: make(map[[3]common.Address]*big.Int, len(s.allowances)),
		supply:     make(map[common.Address]*big.Int, len(s.supply)),
	}
	for k, v := range s.balances {
		next.balances[k] = v
	}
	for k, v := range s.allowances {
		next.allowances[k] = v
	}
	for k, v := range s.supply {
		next.supply[k] = v
	}
	return next
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (s *state) balance(token, holder common.Address) *big.Int {
	return zeroIfNil(s.balances[[2]common.Address{token, holder}])
}

func (s *state) allowance(token, owner, spender common.Address) *big.Int {
	return zeroIfNil(s.allowances[[3]common.Address{token, owner, spender}])
}

func (s *state) move(token, from, to common.Address, amount *big.Int) error {
	have := s.balance(token, from)
	if have.Cmp(amount) < 0 {
		return revert("transfer amount exceeds balance of %s (token %s)", from.Hex(), token.Hex())
	}
	s.balances[[2]common.Address{token, from}] = new(big.Int).Sub(have, amount)
	s.balances[[2]common.Address{token, to}] = new(big.Int).Add(s.balance(token, to), amount)
	return nil
}

// pull debits amount from owner on spender's allowance without crediting anyone.
func (s *state) pull(token, owner, spender common.Address, amount *big.Int) error {
	allowed := s.allowance(token, owner, spender)
	if allowed.Cmp(amount) < 0 {
		return revert("insufficient allowance for %s on %s", spender.Hex(), token.Hex())
	}
	have := s.balance(token, owner)
	if have.Cmp(amount) < 0 {
		return revert("transfer amount exceeds balance of %s (token %s)", owner.Hex(), token.Hex())
	}
	s.balances[[2]common.Address{token, owner}] = new(big.Int).Sub(have, amount)
	s.allowances[[3]common.Address{token, owner, spender}] = new(big.Int).Sub(allowed, amount)
	return nil
}

// transferFrom moves amount from owner to to on spender's allowance.
func (s *state) transferFrom(token, owner, spender, to common.Address, amount *big.Int) error {
	if err := s.pull(token, owner, spender, amount); err != nil {
		return err
	}
	s.balances[[2]common.Address{token, to}] = new(big.Int).Add(s.balance(token, to), amount)
	return nil
}

func (s *state) mint(token, to common.Address, amount *big.Int) {
	s.balances[[2]common.Address{token, to}] = new(big.Int).Add(s.balance(token, to), amount)
	s.supply[token] = new(big.Int).Add(zeroIfNil(s.supply[token]), amount)
}

func (s *state) burn(token, from common.Address, amount *big.Int) error {
	have := s.balance(token, from)
	if have.Cmp(amount) < 0 {
		return revert("burn amount exceeds balance of %s", from.Hex())
	}
	s.balances[[2]common.Address{token, from}] = new(big.Int).Sub(have, amount)
	s.supply[token] = new(big.Int).Sub(zeroIfNil(s.supply[token]), amount)
	return nil
}

// Ledger is an in-memory chain. It is safe for concurrent use.
type Ledger struct {
	cfg    Config
	logger engine.Logger

	mu         sync.RWMutex
	st         *state
	decimals   map[common.Address]uint8
	routers    mapset.Set[common.Address]
	pairs      []pairSpec
	curvePools map[common.Address]curveSpec
}

var _ chains.Readers = (*Ledger)(nil)

// New returns an empty ledger.
func New(cfg Config) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		cfg:        cfg,
		logger:     cfg.Logger,
		st:         newState(),
		decimals:   make(map[common.Address]uint8),
		routers:    mapset.NewThreadUnsafeSet[common.Address](),
		curvePools: make(map[common.Address]curveSpec),
	}, nil
}

// --- Setup ---

// AddToken registers an ERC-20 token.
func (l *Ledger) AddToken(token common.Address, decimals uint8) error {
	if token == (common.Address{}) {
		return fmt.Errorf("%w: token", engine.ErrInvalidAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decimals[token] = decimals
	return nil
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.decimals[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: mint %v", engine.ErrInvalidAmount, amount)
	}
	l.st.mint(token, holder, amount)
	return nil
}

// AddRouter registers a constant-product router. Any router can route through any pair.
func (l *Ledger) AddRouter(router common.Address) error {
	if router == (common.Address{}) {
		return fmt.Errorf("%w: router", engine.ErrInvalidAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routers.Add(router)
	return nil
}

// AddPair registers a constant-product pair holding the given reserves.
func (l *Ledger) AddPair(pair, token0, token1 common.Address, reserve0, reserve1 *big.Int, feeBps uint16) error {
	if pair == (common.Address{}) {
		return fmt.Errorf("%w: pair", engine.ErrInvalidAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, token := range []common.Address{token0, token1} {
		if _, ok := l.decimals[token]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
		}
	}
	l.pairs = append(l.pairs, pairSpec{address: pair, token0: token0, token1: token1, feeBps: feeBps})
	l.st.mint(token0, pair, reserve0)
	l.st.mint(token1, pair, reserve1)
	return nil
}

// AddCurvePool registers a pool described by desc holding balances, one per
// venue coin index. The initial LP supply is minted to the pool itself.
func (l *Ledger) AddCurvePool(desc engine.PoolDescriptor, balances []*big.Int, feeBps uint16) error {
	if desc.Pool == (common.Address{}) || !desc.HasLPToken() {
		return fmt.Errorf("%w: curve pool needs a pool and an LP token", engine.ErrInvalidAddress)
	}
	if _, err := curve.PoolABI(desc.CoinCount()); err != nil {
		return err
	}
	if len(balances) != desc.CoinCount() {
		return fmt.Errorf("simulator: %d balances for %d coins", len(balances), desc.CoinCount())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	spec := curveSpec{desc: desc, feeBps: feeBps}
	for i := range balances {
		coin, err := coinAt(desc, i)
		if err != nil {
			return err
		}
		if _, ok := l.decimals[coin]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, coin.Hex())
		}
	}
	l.decimals[desc.LPToken] = 18
	l.curvePools[desc.Pool] = spec

	seed := new(big.Int)
	for i, b := range balances {
		coin, _ := coinAt(desc, i)
		l.st.mint(coin, desc.Pool, b)
		seed.Add(seed, l.normalize(coin, b))
	}
	l.st.mint(desc.LPToken, desc.Pool, seed)
	return nil
}

// Allowance reads token's allowance from owner to spender.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.st.allowance(token, owner, spender))
}

// --- Read collaborators ---

// GetOperator returns the configured operator.
func (l *Ledger) GetOperator(ctx context.Context) (common.Address, error) {
	return l.cfg.Operator, ctx.Err()
}

// GetRiskOperator returns the configured riskOperator.
func (l *Ledger) GetRiskOperator(ctx context.Context) (common.Address, error) {
	return l.cfg.RiskOperator, ctx.Err()
}

// BalanceOf reads holder's balance of token.
func (l *Ledger) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.decimals[token]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return new(big.Int).Set(l.st.balance(token, holder)), nil
}

// Decimals reads the token's decimals.
func (l *Ledger) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.decimals[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return d, nil
}

// GetTokenPrice derives the 18-decimal spot price of one whole tokenA in
// tokenB from the first registered pair holding both.
func (l *Ledger) GetTokenPrice(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	spec, ok := l.findPair(tokenA, tokenB)
	if !ok {
		return nil, fmt.Errorf("simulator: no pair for %s/%s", tokenA.Hex(), tokenB.Hex())
	}
	reserveA, reserveB, err := calculator.GetReserves(tokenA, tokenB, l.pairPool(l.st, spec))
	if err != nil {
		return nil, err
	}
	if reserveA.Sign() == 0 {
		return nil, fmt.Errorf("simulator: pair %s has no %s reserve", spec.address.Hex(), tokenA.Hex())
	}
	// reserveB / 10^decB per reserveA / 10^decA, scaled by 1e18
	num := new(big.Int).Mul(reserveB, pow10(int(l.decimals[tokenA])+calculator.OraclePriceDecimals))
	den := new(big.Int).Mul(reserveA, pow10(int(l.decimals[tokenB])))
	return num.Div(num, den), nil
}

// CalcTokenAmount quotes the LP minted for amounts.
func (l *Ledger) CalcTokenAmount(ctx context.Context, pool common.Address, amounts []*big.Int, isDeposit bool) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	spec, ok := l.curvePools[pool]
	if !ok {
		return nil, revert("no pool at %s", pool.Hex())
	}
	if !isDeposit {
		return nil, revert("withdrawal quotes are not simulated")
	}
	return l.mintAmount(l.st, spec, amounts)
}

// CalcWithdrawOneCoin quotes the coin at index received for burning amount LP.
func (l *Ledger) CalcWithdrawOneCoin(ctx context.Context, pool common.Address, amount *big.Int, index int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	spec, ok := l.curvePools[pool]
	if !ok {
		return nil, revert("no pool at %s", pool.Hex())
	}
	return l.withdrawOneAmount(l.st, spec, amount, index)
}

// GetExchangeAmount quotes a registry-exchange swap. The native asset
// placeholder stands for the wrapped native token.
func (l *Ledger) GetExchangeAmount(ctx context.Context, pool, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	spec, ok := l.curvePools[pool]
	if !ok {
		return nil, revert("no pool at %s", pool.Hex())
	}
	return l.swapAmount(l.st, spec, l.wrapped(from), l.wrapped(to), amount)
}

// --- Helpers ---

func (l *Ledger) findPair(a, b common.Address) (pairSpec, bool) {
	for _, p := range l.pairs {
		if (p.token0 == a && p.token1 == b) || (p.token0 == b && p.token1 == a) {
			return p, true
		}
	}
	return pairSpec{}, false
}

func (l *Ledger) pairPool(st *state, spec pairSpec) uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  spec.address,
		Token0:   spec.token0,
		Token1:   spec.token1,
		Reserve0: st.balance(spec.token0, spec.address),
		Reserve1: st.balance(spec.token1, spec.address),
		FeeBps:   spec.feeBps,
	}
}

func (l *Ledger) wrapped(token common.Address) common.Address {
	if token == curve.NativeAsset {
		return l.cfg.WrappedNative
	}
	return token
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
