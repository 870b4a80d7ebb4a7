// Package chains declares what the adapters need from a chain backend.
package chains

import (
	"context"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/curve"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/erc20"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	poolregistryindexer "github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Chain IDs with a backend in this module.
const (
	Mainnet uint64 = 1
)

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Readers is every read collaborator the adapters consume.
type Readers interface {
	access.Registry
	uniswapv2.PriceOracle
	erc20.TokenReader
	curve.PoolReader
	curve.ExchangeReader
}

// PoolRegistryIndexer defines the interface for any component that can index pool registries.
type PoolRegistryIndexer interface {
	Index(poolregistry.PoolRegistry) (poolregistryindexer.IndexedPoolRegistry, error)
}

// Addresses names the contracts a chain backend reads from.
type Addresses struct {
	RoleRegistry     common.Address
	PriceOracle      common.Address
	RegistryExchange common.Address
}
