package poolregistry

import (
	"fmt"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// PoolRegistry is the externally supplied set of pool descriptors for one venue.
type PoolRegistry struct {
	Pools []engine.PoolDescriptor `json:"pools" yaml:"pools"`
}

// Validate rejects zero pool addresses, duplicate pools, pools without
// tokens and index lists that do not line up with the token list.
func (r PoolRegistry) Validate() error {
	seen := make(map[common.Address]struct{}, len(r.Pools))
	for i, p := range r.Pools {
		if p.Pool == (common.Address{}) {
			return fmt.Errorf("%w: pool %d has a zero address", engine.ErrInvalidAddress, i)
		}
		if _, dup := seen[p.Pool]; dup {
			return fmt.Errorf("poolregistry: duplicate pool %s", p.Pool.Hex())
		}
		seen[p.Pool] = struct{}{}

		if len(p.UnderlyingTokens) == 0 {
			return fmt.Errorf("poolregistry: pool %s has no underlying tokens", p.Pool.Hex())
		}
		for _, t := range p.UnderlyingTokens {
			if t == (common.Address{}) {
				return fmt.Errorf("%w: pool %s lists a zero token", engine.ErrInvalidAddress, p.Pool.Hex())
			}
		}
		if len(p.TokenIndexes) != 0 && len(p.TokenIndexes) != len(p.UnderlyingTokens) {
			return fmt.Errorf("poolregistry: pool %s has %d tokens but %d indexes", p.Pool.Hex(), len(p.UnderlyingTokens), len(p.TokenIndexes))
		}
	}
	return nil
}

// Lookup is the read side the adapters depend on.
type Lookup interface {
	GetByAddress(address common.Address) (engine.PoolDescriptor, bool)
	GetByLPToken(lpToken common.Address) (engine.PoolDescriptor, bool)
}

// Resolve returns the descriptor of pool or ErrPoolNotFound.
func Resolve(lookup Lookup, pool common.Address) (engine.PoolDescriptor, error) {
	desc, ok := lookup.GetByAddress(pool)
	if !ok {
		return engine.PoolDescriptor{}, fmt.Errorf("%w: %s", engine.ErrPoolNotFound, pool.Hex())
	}
	return desc, nil
}
