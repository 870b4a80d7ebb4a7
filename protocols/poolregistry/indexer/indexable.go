package indexer

import (
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	poolregistry "github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index validates the registry view and indexes it.
func (i *Indexer) Index(view poolregistry.PoolRegistry) (IndexedPoolRegistry, error) {
	if err := view.Validate(); err != nil {
		return nil, err
	}
	return NewIndexablePoolRegistry(view), nil
}

// IndexablePoolRegistry provides fast, indexed access to pool descriptors.
// It never changes after construction.
type IndexablePoolRegistry struct {
	byAddress map[common.Address]engine.PoolDescriptor
	byLPToken map[common.Address]engine.PoolDescriptor
	all       []engine.PoolDescriptor
}

// NewIndexablePoolRegistry creates a new indexed pool registry from the view.
// The view is copied, so later changes to it are not observed.
func NewIndexablePoolRegistry(view poolregistry.PoolRegistry) *IndexablePoolRegistry {
	all := make([]engine.PoolDescriptor, len(view.Pools))
	byAddress := make(map[common.Address]engine.PoolDescriptor, len(view.Pools))
	byLPToken := make(map[common.Address]engine.PoolDescriptor)

	for i, p := range view.Pools {
		p = cloneDescriptor(p)
		all[i] = p
		byAddress[p.Pool] = p
		if p.HasLPToken() {
			byLPToken[p.LPToken] = p
		}
	}

	return &IndexablePoolRegistry{
		byAddress: byAddress,
		byLPToken: byLPToken,
		all:       all,
	}
}

// GetByAddress retrieves a descriptor by its pool contract address.
func (ipr *IndexablePoolRegistry) GetByAddress(address common.Address) (engine.PoolDescriptor, bool) {
	p, ok := ipr.byAddress[address]
	if !ok {
		return engine.PoolDescriptor{}, false
	}
	return cloneDescriptor(p), true
}

// GetByLPToken retrieves a descriptor by its LP token address.
func (ipr *IndexablePoolRegistry) GetByLPToken(lpToken common.Address) (engine.PoolDescriptor, bool) {
	p, ok := ipr.byLPToken[lpToken]
	if !ok {
		return engine.PoolDescriptor{}, false
	}
	return cloneDescriptor(p), true
}

// All returns a defensive copy of every descriptor, in registry order.
func (ipr *IndexablePoolRegistry) All() []engine.PoolDescriptor {
	allCopy := make([]engine.PoolDescriptor, len(ipr.all))
	for i, p := range ipr.all {
		allCopy[i] = cloneDescriptor(p)
	}
	return allCopy
}

func cloneDescriptor(p engine.PoolDescriptor) engine.PoolDescriptor {
	p.UnderlyingTokens = append([]common.Address(nil), p.UnderlyingTokens...)
	if p.TokenIndexes != nil {
		p.TokenIndexes = append([]int(nil), p.TokenIndexes...)
	}
	return p
}
