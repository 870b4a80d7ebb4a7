package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is the reserve state of one constant-product pair.
type Pool struct {
	Address  common.Address `json:"address"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}
