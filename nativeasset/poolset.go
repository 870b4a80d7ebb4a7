// Package nativeasset tracks the pools that take the chain's native asset
// instead of its wrapped ERC-20 form.
package nativeasset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// PoolSet is an operator-gated set of pool addresses. It is safe for concurrent use.
type PoolSet struct {
	guard *access.Guard

	// mu makes each Add or Remove batch atomic, so pools itself is unsynchronised.
	mu    sync.RWMutex
	pools mapset.Set[common.Address]
}

// NewPoolSet creates the set seeded with initial, without a role check.
func NewPoolSet(guard *access.Guard, initial []common.Address) (*PoolSet, error) {
	if guard == nil {
		return nil, errors.New("nativeasset: guard is required")
	}
	if err := validate(initial); err != nil {
		return nil, err
	}
	return &PoolSet{
		guard: guard,
		pools: mapset.NewThreadUnsafeSet(initial...),
	}, nil
}

// Add flags pools. Pools already present are left as they are.
func (s *PoolSet) Add(ctx context.Context, caller common.Address, pools []common.Address) error {
	if err := s.guard.Require(ctx, caller, engine.RoleOperator); err != nil {
		return err
	}
	if err := validate(pools); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		s.pools.Add(p)
	}
	return nil
}

// Remove unflags pools. Removing a pool that is not present is not an error.
func (s *PoolSet) Remove(ctx context.Context, caller common.Address, pools []common.Address) error {
	if err := s.guard.Require(ctx, caller, engine.RoleOperator); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		s.pools.Remove(p)
	}
	return nil
}

// Contains reports whether pool is flagged.
func (s *PoolSet) Contains(pool common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools.Contains(pool)
}

// Pools returns the flagged pools in ascending address order.
func (s *PoolSet) Pools() []common.Address {
	s.mu.RLock()
	out := s.pools.ToSlice()
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func validate(pools []common.Address) error {
	for i, p := range pools {
		if p == (common.Address{}) {
			return fmt.Errorf("%w: pool %d is the zero address", engine.ErrInvalidAddress, i)
		}
	}
	return nil
}
