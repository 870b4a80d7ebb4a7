package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/curve"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/erc20"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-exchange-adapters-go/slippage"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeRegistry struct {
	operator     common.Address
	riskOperator common.Address
}

func (r fakeRegistry) GetOperator(ctx context.Context) (common.Address, error) {
	return r.operator, nil
}

func (r fakeRegistry) GetRiskOperator(ctx context.Context) (common.Address, error) {
	return r.riskOperator, nil
}

type fakeTokens struct {
	balances map[[2]common.Address]*big.Int // (token, holder)
}

func (f *fakeTokens) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	if b, ok := f.balances[[2]common.Address{token, holder}]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeTokens) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return 18, nil
}

// fakePoolReader mints ten LP per coin unit and redeems at the same rate.
type fakePoolReader struct {
	lastAmounts []*big.Int
	lastIndex   int
	err         error
	calls       int
}

func (f *fakePoolReader) CalcTokenAmount(ctx context.Context, pool common.Address, amounts []*big.Int, isDeposit bool) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.lastAmounts = amounts
	sum := new(big.Int)
	for _, a := range amounts {
		sum.Add(sum, a)
	}
	return sum.Mul(sum, big.NewInt(10)), nil
}

func (f *fakePoolReader) CalcWithdrawOneCoin(ctx context.Context, pool common.Address, amount *big.Int, index int) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.lastIndex = index
	return new(big.Int).Div(amount, big.NewInt(10)), nil
}

// fakeExchange quotes every swap at two output units per input unit.
type fakeExchange struct {
	lastFrom, lastTo common.Address
	calls            int
}

func (f *fakeExchange) GetExchangeAmount(ctx context.Context, pool, from, to common.Address, amount *big.Int) (*big.Int, error) {
	f.calls++
	f.lastFrom, f.lastTo = from, to
	return new(big.Int).Mul(amount, big.NewInt(2)), nil
}

var (
	_ erc20.TokenReader    = (*fakeTokens)(nil)
	_ curve.PoolReader     = (*fakePoolReader)(nil)
	_ curve.ExchangeReader = (*fakeExchange)(nil)
)

// --- Fixtures ---

var (
	operator     = common.HexToAddress("0x0000000000000000000000000000000000000008")
	riskOperator = common.HexToAddress("0x0000000000000000000000000000000000000009")
	vault        = common.HexToAddress("0x00000000000000000000000000000000000000aa")

	exchange    = common.HexToAddress("0x81C46fECa27B31F3ADC2b91eE4be9717d1cd3DD7")
	gatewayAddr = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdt = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")

	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	steth = common.HexToAddress("0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84")

	threePool = common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7")
	threeCrv  = common.HexToAddress("0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490")
	stethPool = common.HexToAddress("0xDC24316b9AE028F1497c275EB9192a3Ea0f67022")
	stethLP   = common.HexToAddress("0x06325440D014e39736583c165C2963BA99fAf14E")
	tricrypto = common.HexToAddress("0xD51a44d3FaE010294C616388b506AcdA1bfAAE46")
	wideLP    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	widePool  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	oldPool   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	oldPoolLP = common.HexToAddress("0x4444444444444444444444444444444444444444")
	unlisted  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	extraCoin = common.HexToAddress("0x6666666666666666666666666666666666666666")
	oneEther  = big.NewInt(1_000_000_000_000_000_000)
)

type harness struct {
	adapter  *Adapter
	tokens   *fakeTokens
	pools    *fakePoolReader
	exchange *fakeExchange
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pools, err := indexer.New().Index(poolregistry.PoolRegistry{Pools: []engine.PoolDescriptor{
		{Pool: threePool, LPToken: threeCrv, UnderlyingTokens: []common.Address{dai, usdc, usdt}},
		{Pool: stethPool, LPToken: stethLP, UnderlyingTokens: []common.Address{weth, steth}},
		{Pool: tricrypto, UnderlyingTokens: []common.Address{usdt, wbtc, weth}},
		{Pool: widePool, LPToken: wideLP, UnderlyingTokens: []common.Address{dai, usdc, usdt, wbtc, extraCoin}},
		{Pool: oldPool, LPToken: oldPoolLP, UnderlyingTokens: []common.Address{dai, usdc}, Deprecated: true},
	}})
	require.NoError(t, err)

	tokens := &fakeTokens{balances: map[[2]common.Address]*big.Int{
		{usdc, vault}:     big.NewInt(1000),
		{dai, vault}:      big.NewInt(500),
		{threeCrv, vault}: big.NewInt(200),
		{weth, vault}:     new(big.Int).Mul(oneEther, big.NewInt(2)),
		{steth, vault}:    new(big.Int).Set(oneEther),
		{stethLP, vault}:  new(big.Int).Mul(oneEther, big.NewInt(5)),
		{usdt, vault}:     big.NewInt(300),
	}}
	reader := &fakePoolReader{}
	quoter := &fakeExchange{}
	reg := prometheus.NewRegistry()

	a, err := NewAdapter(Config{
		Name:             "curve",
		RegistryExchange: exchange,
		Gateway:          gatewayAddr,
		WrappedNative:    weth,
		Pools:            pools,
		PoolReader:       reader,
		ExchangeReader:   quoter,
		Tokens:           tokens,
		Registry:         fakeRegistry{operator: operator, riskOperator: riskOperator},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	},
		WithPrometheusRegisterer(reg),
		WithNativeAssetPools([]common.Address{stethPool}),
		WithInitialSlippage([]slippage.Entry{
			{Pool: threePool, WantToken: threeCrv, ToleranceBps: 100},
			{Pool: threePool, WantToken: usdc, ToleranceBps: 100},
		}),
	)
	require.NoError(t, err)
	return &harness{adapter: a, tokens: tokens, pools: reader, exchange: quoter, registry: reg}
}

func decodeApprove(t *testing.T, ins engine.Instruction) (common.Address, *big.Int) {
	t.Helper()
	method := erc20.ABI.Methods["approve"]
	require.Equal(t, method.ID, ins.Selector())
	args, err := method.Inputs.Unpack(ins.Payload[4:])
	require.NoError(t, err)
	return args[0].(common.Address), args[1].(*big.Int)
}

// requireApprovalPair checks the revoke-then-grant pair at the head of codes.
func requireApprovalPair(t *testing.T, codes engine.Codes, token, spender common.Address, amount *big.Int) {
	t.Helper()
	require.GreaterOrEqual(t, len(codes), 2)
	for i, expected := range []*big.Int{big.NewInt(0), amount} {
		assert.Equal(t, token, codes[i].Target)
		gotSpender, gotAmount := decodeApprove(t, codes[i])
		assert.Equal(t, spender, gotSpender)
		assert.Zero(t, expected.Cmp(gotAmount), "approval %d: want %s got %s", i, expected, gotAmount)
	}
}

func unpackCall(t *testing.T, parsed abi.ABI, name string, ins engine.Instruction) []any {
	t.Helper()
	method := parsed.Methods[name]
	require.Equal(t, method.ID, ins.Selector(), name)
	args, err := method.Inputs.Unpack(ins.Payload[4:])
	require.NoError(t, err)
	return args
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// --- Tests ---

func TestNewAdapter_Validation(t *testing.T) {
	pools := indexer.NewIndexablePoolRegistry(poolregistry.PoolRegistry{})
	valid := Config{
		Name:             "curve",
		RegistryExchange: exchange,
		Gateway:          gatewayAddr,
		WrappedNative:    weth,
		Pools:            pools,
		PoolReader:       &fakePoolReader{},
		ExchangeReader:   &fakeExchange{},
		Tokens:           &fakeTokens{},
		Registry:         fakeRegistry{},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "MissingName", mutate: func(c *Config) { c.Name = "" }},
		{name: "MissingRegistryExchange", mutate: func(c *Config) { c.RegistryExchange = common.Address{} }},
		{name: "MissingGateway", mutate: func(c *Config) { c.Gateway = common.Address{} }},
		{name: "MissingWrappedNative", mutate: func(c *Config) { c.WrappedNative = common.Address{} }},
		{name: "MissingPools", mutate: func(c *Config) { c.Pools = nil }},
		{name: "MissingPoolReader", mutate: func(c *Config) { c.PoolReader = nil }},
		{name: "MissingExchangeReader", mutate: func(c *Config) { c.ExchangeReader = nil }},
		{name: "MissingTokens", mutate: func(c *Config) { c.Tokens = nil }},
		{name: "MissingRegistry", mutate: func(c *Config) { c.Registry = nil }},
		{name: "MissingLogger", mutate: func(c *Config) { c.Logger = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := NewAdapter(cfg)
			assert.Error(t, err)
		})
	}

	t.Run("ZeroSeededPool", func(t *testing.T) {
		_, err := NewAdapter(valid, WithNativeAssetPools([]common.Address{{}}))
		assert.ErrorIs(t, err, engine.ErrInvalidAddress)
	})

	t.Run("Valid", func(t *testing.T) {
		a, err := NewAdapter(valid, WithNativeAssetPools([]common.Address{stethPool, exchange}))
		require.NoError(t, err)
		assert.Equal(t, "curve", a.Name())
		assert.True(t, a.IsNativeAssetPool(stethPool))
		assert.True(t, a.IsNativeAssetPool(exchange))
		assert.False(t, a.IsNativeAssetPool(threePool))
	})
}

func TestAdapter_Pricing(t *testing.T) {
	ctx := context.Background()

	t.Run("LPPath_Deposit", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, threeCrv, big.NewInt(20))
		require.NoError(t, err)
		assert.Equal(t, int64(200), out.Int64())
		require.Len(t, h.pools.lastAmounts, 3)
		assert.Equal(t, []int64{0, 20, 0}, []int64{h.pools.lastAmounts[0].Int64(), h.pools.lastAmounts[1].Int64(), h.pools.lastAmounts[2].Int64()})
	})

	t.Run("LPPath_Inverse", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.adapter.GetSomeAmountInToken(ctx, usdt, threePool, threeCrv, big.NewInt(70))
		require.NoError(t, err)
		assert.Equal(t, int64(7), out.Int64())
		assert.Equal(t, 2, h.pools.lastIndex)
	})

	t.Run("SwapPath", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, dai, big.NewInt(10))
		require.NoError(t, err)
		assert.Equal(t, int64(20), out.Int64())
		assert.Equal(t, usdc, h.exchange.lastFrom)
		assert.Equal(t, dai, h.exchange.lastTo)

		out, err = h.adapter.GetSomeAmountInToken(ctx, usdc, threePool, dai, big.NewInt(10))
		require.NoError(t, err)
		assert.Equal(t, int64(20), out.Int64())
		assert.Equal(t, dai, h.exchange.lastFrom, "the inverse quote swaps output back into input")
		assert.Equal(t, usdc, h.exchange.lastTo)
	})

	t.Run("SwapPath_NativeAssetQuote", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.adapter.CalculateAmountInLPToken(ctx, steth, stethPool, weth, oneEther)
		require.NoError(t, err)
		assert.Equal(t, steth, h.exchange.lastFrom)
		assert.Equal(t, curve.NativeAsset, h.exchange.lastTo)
	})

	t.Run("SwapPath_WrappedNativeQuotedAsNativeOnUnflaggedPool", func(t *testing.T) {
		h := newHarness(t)
		require.False(t, h.adapter.IsNativeAssetPool(tricrypto))

		_, err := h.adapter.CalculateAmountInLPToken(ctx, usdt, tricrypto, weth, big.NewInt(10))
		require.NoError(t, err)
		assert.Equal(t, usdt, h.exchange.lastFrom)
		assert.Equal(t, curve.NativeAsset, h.exchange.lastTo)

		_, err = h.adapter.GetSomeAmountInToken(ctx, usdt, tricrypto, weth, big.NewInt(10))
		require.NoError(t, err)
		assert.Equal(t, curve.NativeAsset, h.exchange.lastFrom)
		assert.Equal(t, usdt, h.exchange.lastTo)
	})

	t.Run("Balances", func(t *testing.T) {
		h := newHarness(t)
		balance, err := h.adapter.GetLiquidityPoolTokenBalance(ctx, vault, usdc, threePool, threeCrv)
		require.NoError(t, err)
		assert.Equal(t, int64(200), balance.Int64())

		all, err := h.adapter.GetAllAmountInToken(ctx, vault, usdc, threePool, threeCrv)
		require.NoError(t, err)
		assert.Equal(t, int64(20), all.Int64())
	})

	t.Run("ZeroAmount_NoCollaboratorCalls", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, threeCrv, big.NewInt(0))
		require.NoError(t, err)
		assert.Zero(t, out.Sign())
		assert.Equal(t, 0, h.pools.calls)
	})

	t.Run("InvalidAmounts", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, threeCrv, nil)
		assert.ErrorIs(t, err, engine.ErrInvalidAmount)
		_, err = h.adapter.GetSomeAmountInToken(ctx, usdc, threePool, threeCrv, big.NewInt(-1))
		assert.ErrorIs(t, err, engine.ErrInvalidAmount)
	})

	t.Run("UnsupportedShape", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.adapter.CalculateAmountInLPToken(ctx, dai, widePool, wideLP, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrUnsupportedPoolShape)
		_, err = h.adapter.GetSomeAmountInToken(ctx, dai, widePool, wideLP, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrUnsupportedPoolShape)
		assert.Equal(t, 0, h.pools.calls)
	})

	t.Run("TokenMismatch", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.adapter.CalculateAmountInLPToken(ctx, wbtc, threePool, threeCrv, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrTokenMismatch)
		_, err = h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, wbtc, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrTokenMismatch)
		_, err = h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, usdc, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrTokenMismatch)
	})

	t.Run("LPTokenOfAnotherPool", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, oldPoolLP, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrTokenMismatch)
		assert.ErrorContains(t, err, "is the LP token of pool "+oldPool.Hex())
		assert.Equal(t, 0, h.exchange.calls)
	})

	t.Run("UnknownPool", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, unlisted, threeCrv, big.NewInt(1))
		assert.ErrorIs(t, err, engine.ErrPoolNotFound)
	})

	t.Run("ReaderErrorPropagates", func(t *testing.T) {
		h := newHarness(t)
		boom := errors.New("node down")
		h.pools.err = boom
		_, err := h.adapter.CalculateAmountInLPToken(ctx, usdc, threePool, threeCrv, big.NewInt(1))
		assert.ErrorIs(t, err, boom)
	})
}

func TestAdapter_DepositCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("LPPath_ThreeCoinIndexOne", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositSomeCodes(ctx, vault, usdc, threePool, threeCrv, big.NewInt(20))
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, usdc, threePool, big.NewInt(20))

		assert.Equal(t, threePool, codes[2].Target)
		args := unpackCall(t, curve.PoolABIs[3], "add_liquidity", codes[2])
		amounts := args[0].([3]*big.Int)
		assert.Equal(t, []int64{0, 20, 0}, []int64{amounts[0].Int64(), amounts[1].Int64(), amounts[2].Int64()})
		// estimate 200 less 100 bps
		assert.Equal(t, int64(198), args[1].(*big.Int).Int64())

		assert.Equal(t, 1.0, counterValue(t, h.registry, "adapter_codes_generated_total", map[string]string{"operation": "deposit_some"}))
	})

	t.Run("LPPath_All_CappedAtBalance", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositSomeCodes(ctx, vault, usdc, threePool, threeCrv, big.NewInt(5000))
		require.NoError(t, err)
		requireApprovalPair(t, codes, usdc, threePool, big.NewInt(1000))

		all, err := h.adapter.GetDepositAllCodes(ctx, vault, usdc, threePool, threeCrv)
		require.NoError(t, err)
		assert.Equal(t, codes, all)
	})

	t.Run("SwapPath", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositSomeCodes(ctx, vault, usdc, threePool, dai, big.NewInt(10))
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, usdc, exchange, big.NewInt(10))

		assert.Equal(t, exchange, codes[2].Target)
		args := unpackCall(t, curve.RegistryExchangeABI, "exchange", codes[2])
		assert.Equal(t, threePool, args[0].(common.Address))
		assert.Equal(t, usdc, args[1].(common.Address))
		assert.Equal(t, dai, args[2].(common.Address))
		assert.Equal(t, int64(10), args[3].(*big.Int).Int64())
		assert.Equal(t, int64(20), args[4].(*big.Int).Int64(), "no tolerance configured for (3pool, dai)")
		assert.Equal(t, vault, args[5].(common.Address))
	})

	t.Run("Gateway_LPPath", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositSomeCodes(ctx, vault, weth, stethPool, stethLP, oneEther)
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, weth, gatewayAddr, oneEther)

		assert.Equal(t, gatewayAddr, codes[2].Target)
		args := unpackCall(t, curve.GatewayABI, "depositETH", codes[2])
		assert.Equal(t, vault, args[0].(common.Address))
		assert.Equal(t, stethPool, args[1].(common.Address))
		assert.Equal(t, stethLP, args[2].(common.Address))
		amounts := args[3].([]*big.Int)
		require.Len(t, amounts, 2)
		assert.Zero(t, oneEther.Cmp(amounts[0]))
		assert.Zero(t, amounts[1].Sign())
		assert.Zero(t, args[4].(*big.Int).Sign())
		assert.Zero(t, new(big.Int).Mul(oneEther, big.NewInt(10)).Cmp(args[5].(*big.Int)))
	})

	t.Run("Gateway_NonNativeCoinGoesToPool", func(t *testing.T) {
		h := newHarness(t)
		require.True(t, h.adapter.IsNativeAssetPool(stethPool))
		codes, err := h.adapter.GetDepositSomeCodes(ctx, vault, steth, stethPool, stethLP, oneEther)
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, steth, stethPool, oneEther)

		assert.Equal(t, stethPool, codes[2].Target)
		args := unpackCall(t, curve.PoolABIs[2], "add_liquidity", codes[2])
		amounts := args[0].([2]*big.Int)
		assert.Zero(t, amounts[0].Sign())
		assert.Zero(t, oneEther.Cmp(amounts[1]))
	})

	t.Run("Gateway_SwapPath", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositAllCodes(ctx, vault, steth, stethPool, weth)
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, steth, gatewayAddr, oneEther)

		args := unpackCall(t, curve.GatewayABI, "exchangeETH", codes[2])
		assert.Equal(t, stethPool, args[1].(common.Address))
		assert.Equal(t, steth, args[2].(common.Address))
		assert.Equal(t, weth, args[3].(common.Address))
		assert.Zero(t, new(big.Int).Mul(oneEther, big.NewInt(2)).Cmp(args[5].(*big.Int)))
	})

	t.Run("FlaggedExchange_RoutesWrappedNativeSwaps", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositAllCodes(ctx, vault, usdt, tricrypto, weth)
		require.NoError(t, err)
		assert.Equal(t, exchange, codes[2].Target)
		assert.Equal(t, curve.NativeAsset, h.exchange.lastTo, "quotes always name the native asset")
		args := unpackCall(t, curve.RegistryExchangeABI, "exchange", codes[2])
		assert.Equal(t, weth, args[2].(common.Address), "the exchange call keeps the wrapped form")

		require.NoError(t, h.adapter.SetEthPools(ctx, operator, []common.Address{exchange}))
		codes, err = h.adapter.GetDepositAllCodes(ctx, vault, usdt, tricrypto, weth)
		require.NoError(t, err)
		requireApprovalPair(t, codes, usdt, gatewayAddr, big.NewInt(300))
		assert.Equal(t, gatewayAddr, codes[2].Target)
		assert.Equal(t, curve.NativeAsset, h.exchange.lastTo)
	})

	t.Run("UnsupportedShape_NoCodes", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositAllCodes(ctx, vault, dai, widePool, wideLP)
		assert.ErrorIs(t, err, engine.ErrUnsupportedPoolShape)
		assert.Nil(t, codes)
	})

	t.Run("DeprecatedPool_Rejected", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositAllCodes(ctx, vault, dai, oldPool, oldPoolLP)
		assert.ErrorIs(t, err, engine.ErrPoolDeprecated)
		assert.Nil(t, codes)
	})

	t.Run("ZeroBalance_EmptyCodes", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetDepositAllCodes(ctx, vault, wbtc, tricrypto, usdt)
		require.NoError(t, err)
		assert.NotNil(t, codes)
		assert.Empty(t, codes)
		assert.Equal(t, 0, h.exchange.calls)
	})

	t.Run("ReaderFailure_NoPartialCodes", func(t *testing.T) {
		h := newHarness(t)
		h.pools.err = errors.New("node down")
		codes, err := h.adapter.GetDepositAllCodes(ctx, vault, usdc, threePool, threeCrv)
		assert.Error(t, err)
		assert.Nil(t, codes)
	})
}

func TestAdapter_WithdrawCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("LPPath_All", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetWithdrawAllCodes(ctx, vault, usdc, threePool, threeCrv)
		require.NoError(t, err)
		require.Len(t, codes, 1, "the pool burns the vault's LP without an allowance")

		assert.Equal(t, threePool, codes[0].Target)
		args := unpackCall(t, curve.PoolABIs[3], "remove_liquidity_one_coin", codes[0])
		assert.Equal(t, int64(200), args[0].(*big.Int).Int64())
		assert.Equal(t, int64(1), args[1].(*big.Int).Int64())
		// estimate 20 less 100 bps, rounded down
		assert.Equal(t, int64(19), args[2].(*big.Int).Int64())
	})

	t.Run("LPPath_Some_AboveBalance", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetWithdrawSomeCodes(ctx, vault, usdc, threePool, threeCrv, big.NewInt(201))
		assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
		assert.Nil(t, codes)
	})

	t.Run("SwapPath_All", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetWithdrawAllCodes(ctx, vault, usdc, threePool, dai)
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, dai, exchange, big.NewInt(500))

		args := unpackCall(t, curve.RegistryExchangeABI, "exchange", codes[2])
		assert.Equal(t, dai, args[1].(common.Address))
		assert.Equal(t, usdc, args[2].(common.Address))
		assert.Equal(t, int64(500), args[3].(*big.Int).Int64())
		assert.Equal(t, int64(990), args[4].(*big.Int).Int64())
	})

	t.Run("Gateway_LPPath", func(t *testing.T) {
		h := newHarness(t)
		lpBalance := new(big.Int).Mul(oneEther, big.NewInt(5))
		codes, err := h.adapter.GetWithdrawAllCodes(ctx, vault, weth, stethPool, stethLP)
		require.NoError(t, err)
		require.Len(t, codes, 3)
		requireApprovalPair(t, codes, stethLP, gatewayAddr, lpBalance)

		assert.Equal(t, gatewayAddr, codes[2].Target)
		args := unpackCall(t, curve.GatewayABI, "withdrawETH", codes[2])
		assert.Zero(t, lpBalance.Cmp(args[3].(*big.Int)))
		assert.Zero(t, args[4].(*big.Int).Sign())
		assert.Zero(t, new(big.Int).Div(lpBalance, big.NewInt(10)).Cmp(args[5].(*big.Int)))
	})

	t.Run("Gateway_NonNativeCoinGoesToPool", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetWithdrawSomeCodes(ctx, vault, steth, stethPool, stethLP, oneEther)
		require.NoError(t, err)
		require.Len(t, codes, 1)

		assert.Equal(t, stethPool, codes[0].Target)
		args := unpackCall(t, curve.PoolABIs[2], "remove_liquidity_one_coin", codes[0])
		assert.Zero(t, oneEther.Cmp(args[0].(*big.Int)))
		assert.Equal(t, int64(1), args[1].(*big.Int).Int64())
	})

	t.Run("UnsupportedShape", func(t *testing.T) {
		h := newHarness(t)
		h.tokens.balances[[2]common.Address{wideLP, vault}] = big.NewInt(10)
		codes, err := h.adapter.GetWithdrawAllCodes(ctx, vault, dai, widePool, wideLP)
		assert.ErrorIs(t, err, engine.ErrUnsupportedPoolShape)
		assert.Nil(t, codes)
	})

	t.Run("DeprecatedPool_Allowed", func(t *testing.T) {
		h := newHarness(t)
		h.tokens.balances[[2]common.Address{oldPoolLP, vault}] = big.NewInt(10)
		codes, err := h.adapter.GetWithdrawAllCodes(ctx, vault, dai, oldPool, oldPoolLP)
		require.NoError(t, err)
		assert.Len(t, codes, 1)
	})

	t.Run("ZeroBalance_EmptyCodes", func(t *testing.T) {
		h := newHarness(t)
		codes, err := h.adapter.GetWithdrawAllCodes(ctx, vault, dai, oldPool, oldPoolLP)
		require.NoError(t, err)
		assert.Empty(t, codes)
	})
}

func TestAdapter_EthPools(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	err := h.adapter.SetEthPools(ctx, riskOperator, []common.Address{threePool})
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
	assert.EqualError(t, err, "setEthPools: caller is not the operator")
	assert.False(t, h.adapter.IsNativeAssetPool(threePool))

	require.NoError(t, h.adapter.SetEthPools(ctx, operator, []common.Address{threePool}))
	require.NoError(t, h.adapter.SetEthPools(ctx, operator, []common.Address{threePool}), "adding a present pool is a no-op")
	assert.True(t, h.adapter.IsNativeAssetPool(threePool))
	assert.ElementsMatch(t, []common.Address{threePool, stethPool}, h.adapter.NativeAssetPools())

	err = h.adapter.SetEthPools(ctx, operator, []common.Address{tricrypto, {}})
	assert.ErrorIs(t, err, engine.ErrInvalidAddress)
	assert.False(t, h.adapter.IsNativeAssetPool(tricrypto), "a rejected batch leaves the set untouched")

	err = h.adapter.UnsetEthPools(ctx, riskOperator, []common.Address{threePool})
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	require.NoError(t, h.adapter.UnsetEthPools(ctx, operator, []common.Address{threePool, unlisted}))
	assert.False(t, h.adapter.IsNativeAssetPool(threePool))
	assert.True(t, h.adapter.IsNativeAssetPool(stethPool))

	assert.Equal(t, 2.0, counterValue(t, h.registry, "adapter_config_mutations_total", map[string]string{"setter": "setEthPools", "result": "ok"}))
	assert.Equal(t, 2.0, counterValue(t, h.registry, "adapter_config_mutations_total", map[string]string{"setter": "setEthPools", "result": "rejected"}))
}

func TestAdapter_Slippage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	err := h.adapter.SetLiquidityPoolToWantTokenToSlippage(ctx, operator, []slippage.Entry{{Pool: threePool, WantToken: dai, ToleranceBps: 30}})
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
	assert.Equal(t, uint16(0), h.adapter.LiquidityPoolToWantTokenToSlippage(threePool, dai))

	require.NoError(t, h.adapter.SetLiquidityPoolToWantTokenToSlippage(ctx, riskOperator, []slippage.Entry{{Pool: threePool, WantToken: dai, ToleranceBps: 30}}))
	assert.Equal(t, uint16(30), h.adapter.LiquidityPoolToWantTokenToSlippage(threePool, dai))
	assert.Equal(t, uint16(100), h.adapter.LiquidityPoolToWantTokenToSlippage(threePool, usdc))
}

func TestAdapter_CanStake(t *testing.T) {
	h := newHarness(t)
	for _, p := range []common.Address{threePool, stethPool, tricrypto, unlisted} {
		assert.False(t, h.adapter.CanStake(p))
	}
}
