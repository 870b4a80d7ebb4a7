package indexer

import (
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedPoolRegistry defines the methods for accessing indexed pool registry data.
type IndexedPoolRegistry interface {
	GetByAddress(address common.Address) (engine.PoolDescriptor, bool)
	GetByLPToken(lpToken common.Address) (engine.PoolDescriptor, bool)
	All() []engine.PoolDescriptor
}
