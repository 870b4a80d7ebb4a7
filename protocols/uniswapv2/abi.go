package uniswapv2

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// RouterABIJSON is the router subset the adapter compiles calls for.
const RouterABIJSON = `[
	{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// PriceOracleABIJSON is the price feed read by the oracle client.
const PriceOracleABIJSON = `[
	{"name":"getTokenPrice","type":"function","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	// RouterABI is the parsed form of RouterABIJSON.
	RouterABI abi.ABI
	// PriceOracleABI is the parsed form of PriceOracleABIJSON.
	PriceOracleABI abi.ABI

	// NoDeadline is 2^256-1, the swap deadline used in compiled calls so that
	// the same inputs always compile to the same bytes.
	NoDeadline = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func init() {
	var err error
	if RouterABI, err = abi.JSON(strings.NewReader(RouterABIJSON)); err != nil {
		panic(fmt.Sprintf("uniswapv2: invalid router ABI: %v", err))
	}
	if PriceOracleABI, err = abi.JSON(strings.NewReader(PriceOracleABIJSON)); err != nil {
		panic(fmt.Sprintf("uniswapv2: invalid price oracle ABI: %v", err))
	}
}

// PriceOracle answers the 18-decimal price of one whole tokenA in whole tokenB.
type PriceOracle interface {
	GetTokenPrice(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, error)
}
