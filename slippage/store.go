// Package slippage stores the maximum tolerated price deviation per
// (pool, wanted token) pair, in basis points.
package slippage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxToleranceBps is 100% expressed in basis points.
const MaxToleranceBps = 10000

var (
	// ErrToleranceOutOfRange is returned for a tolerance above MaxToleranceBps.
	ErrToleranceOutOfRange = errors.New("slippage tolerance out of range")

	basisPointDivisor = uint256.NewInt(MaxToleranceBps)
)

// Entry binds a tolerance to a (pool, want token) pair.
type Entry struct {
	Pool         common.Address `json:"pool" yaml:"pool"`
	WantToken    common.Address `json:"wantToken" yaml:"want_token"`
	ToleranceBps uint16         `json:"toleranceBps" yaml:"tolerance_bps"`
}

type key struct {
	pool common.Address
	want common.Address
}

// Store is safe for concurrent use. A batch passed to Set is applied under
// one write lock, so readers never see half of it.
type Store struct {
	guard *access.Guard

	mu      sync.RWMutex
	entries map[key]uint16
}

// NewStore creates a store whose setter is gated by guard's riskOperator.
// initial entries are applied without a role check.
func NewStore(guard *access.Guard, initial []Entry) (*Store, error) {
	if guard == nil {
		return nil, errors.New("slippage: guard is required")
	}
	if err := validate(initial); err != nil {
		return nil, err
	}
	s := &Store{
		guard:   guard,
		entries: make(map[key]uint16, len(initial)),
	}
	s.apply(initial)
	return s, nil
}

// Set validates every entry before applying any of them.
func (s *Store) Set(ctx context.Context, caller common.Address, entries []Entry) error {
	if err := s.guard.Require(ctx, caller, engine.RoleRiskOperator); err != nil {
		return err
	}
	if err := validate(entries); err != nil {
		return err
	}
	s.apply(entries)
	return nil
}

// Get returns the configured tolerance, or 0 when the pair was never configured.
func (s *Store) Get(pool, want common.Address) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key{pool: pool, want: want}]
}

// Len returns the number of configured pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) apply(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[key{pool: e.Pool, want: e.WantToken}] = e.ToleranceBps
	}
}

func validate(entries []Entry) error {
	for i, e := range entries {
		if e.Pool == (common.Address{}) || e.WantToken == (common.Address{}) {
			return fmt.Errorf("%w: entry %d has a zero pool or want token", engine.ErrInvalidAddress, i)
		}
		if e.ToleranceBps > MaxToleranceBps {
			return fmt.Errorf("%w: entry %d has %d bps", ErrToleranceOutOfRange, i, e.ToleranceBps)
		}
	}
	return nil
}

// ApplyTolerance returns amount * (10000 - bps) / 10000, rounded down.
func ApplyTolerance(amount *big.Int, bps uint16) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("slippage: amount must be non-nil and non-negative")
	}
	if bps > MaxToleranceBps {
		return nil, fmt.Errorf("%w: %d bps", ErrToleranceOutOfRange, bps)
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("slippage: amount %s exceeds 256 bits", amount)
	}
	keep := uint256.NewInt(uint64(MaxToleranceBps - bps))
	product, overflow := new(uint256.Int).MulOverflow(a, keep)
	if overflow {
		return nil, fmt.Errorf("slippage: amount %s overflows when scaled", amount)
	}
	return product.Div(product, basisPointDivisor).ToBig(), nil
}
