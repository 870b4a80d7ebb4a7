package curve

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the placeholder address Curve contracts use for ETH.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// poolABITemplate is the pool subset used by the adapter; %[1]d is the coin count.
const poolABITemplate = `[
	{"name":"add_liquidity","type":"function","stateMutability":"payable","inputs":[{"name":"amounts","type":"uint256[%[1]d]"},{"name":"min_mint_amount","type":"uint256"}],"outputs":[]},
	{"name":"calc_token_amount","type":"function","stateMutability":"view","inputs":[{"name":"amounts","type":"uint256[%[1]d]"},{"name":"is_deposit","type":"bool"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"remove_liquidity_one_coin","type":"function","stateMutability":"nonpayable","inputs":[{"name":"_token_amount","type":"uint256"},{"name":"i","type":"int128"},{"name":"min_amount","type":"uint256"}],"outputs":[]},
	{"name":"calc_withdraw_one_coin","type":"function","stateMutability":"view","inputs":[{"name":"_token_amount","type":"uint256"},{"name":"i","type":"int128"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// RegistryExchangeABIJSON is the aggregator that swaps between any two coins of a pool.
const RegistryExchangeABIJSON = `[
	{"name":"get_exchange_amount","type":"function","stateMutability":"view","inputs":[{"name":"_pool","type":"address"},{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"exchange","type":"function","stateMutability":"payable","inputs":[{"name":"_pool","type":"address"},{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"},{"name":"_expected","type":"uint256"},{"name":"_receiver","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// GatewayABIJSON is the native-asset gateway. It unwraps the wrapped token
// before the pool call and wraps native proceeds after it.
const GatewayABIJSON = `[
	{"name":"depositETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"vault","type":"address"},{"name":"pool","type":"address"},{"name":"lpToken","type":"address"},{"name":"amounts","type":"uint256[]"},{"name":"index","type":"int128"},{"name":"minMint","type":"uint256"}],"outputs":[]},
	{"name":"withdrawETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"vault","type":"address"},{"name":"pool","type":"address"},{"name":"lpToken","type":"address"},{"name":"amount","type":"uint256"},{"name":"index","type":"int128"},{"name":"minAmount","type":"uint256"}],"outputs":[]},
	{"name":"exchangeETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"vault","type":"address"},{"name":"pool","type":"address"},{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"expected","type":"uint256"}],"outputs":[]}
]`

var (
	// PoolABIs holds the pool ABI for each supported coin count.
	PoolABIs = map[int]abi.ABI{}
	// RegistryExchangeABI is the parsed form of RegistryExchangeABIJSON.
	RegistryExchangeABI abi.ABI
	// GatewayABI is the parsed form of GatewayABIJSON.
	GatewayABI abi.ABI
)

func init() {
	for _, n := range []int{2, 3, 4} {
		parsed, err := abi.JSON(strings.NewReader(fmt.Sprintf(poolABITemplate, n)))
		if err != nil {
			panic(fmt.Sprintf("curve: invalid %d-coin pool ABI: %v", n, err))
		}
		PoolABIs[n] = parsed
	}
	var err error
	if RegistryExchangeABI, err = abi.JSON(strings.NewReader(RegistryExchangeABIJSON)); err != nil {
		panic(fmt.Sprintf("curve: invalid registry exchange ABI: %v", err))
	}
	if GatewayABI, err = abi.JSON(strings.NewReader(GatewayABIJSON)); err != nil {
		panic(fmt.Sprintf("curve: invalid gateway ABI: %v", err))
	}
}

// PoolABI returns the pool ABI for coinCount.
func PoolABI(coinCount int) (abi.ABI, error) {
	parsed, ok := PoolABIs[coinCount]
	if !ok {
		return abi.ABI{}, fmt.Errorf("%w: %d coins", engine.ErrUnsupportedPoolShape, coinCount)
	}
	return parsed, nil
}

// PoolReader quotes deposits into and withdrawals from a pool.
type PoolReader interface {
	CalcTokenAmount(ctx context.Context, pool common.Address, amounts []*big.Int, isDeposit bool) (*big.Int, error)
	CalcWithdrawOneCoin(ctx context.Context, pool common.Address, amount *big.Int, index int) (*big.Int, error)
}

// ExchangeReader quotes swaps through the registry exchange.
type ExchangeReader interface {
	GetExchangeAmount(ctx context.Context, pool, from, to common.Address, amount *big.Int) (*big.Int, error)
}
