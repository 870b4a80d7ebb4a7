package nativeasset

import (
	"context"
	"testing"

	"github.com/defistate/defistate-exchange-adapters-go/access"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRegistry struct {
	operator     common.Address
	riskOperator common.Address
}

func (r staticRegistry) GetOperator(ctx context.Context) (common.Address, error) {
	return r.operator, nil
}

func (r staticRegistry) GetRiskOperator(ctx context.Context) (common.Address, error) {
	return r.riskOperator, nil
}

var (
	operator     = common.HexToAddress("0x0000000000000000000000000000000000000008")
	riskOperator = common.HexToAddress("0x0000000000000000000000000000000000000009")

	steth = common.HexToAddress("0xDC24316b9AE028F1497c275EB9192a3Ea0f67022")
	seth  = common.HexToAddress("0xc5424B857f758E906013F3555Dad202e4bdB4567")
	reth  = common.HexToAddress("0xF9440930043eb3997fc70e1339dBb11F341de7A8")
)

func newTestSet(t *testing.T, initial ...common.Address) *PoolSet {
	t.Helper()
	guard, err := access.NewGuard(staticRegistry{operator: operator, riskOperator: riskOperator})
	require.NoError(t, err)
	s, err := NewPoolSet(guard, initial)
	require.NoError(t, err)
	return s
}

func TestPoolSet(t *testing.T) {
	ctx := context.Background()

	t.Run("SeededAtConstruction", func(t *testing.T) {
		s := newTestSet(t, steth, seth)
		assert.True(t, s.Contains(steth))
		assert.True(t, s.Contains(seth))
		assert.False(t, s.Contains(reth))
	})

	t.Run("Add_Idempotent", func(t *testing.T) {
		s := newTestSet(t)
		require.NoError(t, s.Add(ctx, operator, []common.Address{reth}))
		require.NoError(t, s.Add(ctx, operator, []common.Address{reth, reth}))
		assert.Equal(t, []common.Address{reth}, s.Pools())
	})

	t.Run("Remove_Idempotent", func(t *testing.T) {
		s := newTestSet(t, steth)
		require.NoError(t, s.Remove(ctx, operator, []common.Address{steth}))
		require.NoError(t, s.Remove(ctx, operator, []common.Address{steth, seth}))
		assert.False(t, s.Contains(steth))
		assert.Empty(t, s.Pools())
	})

	t.Run("ZeroAddress_RejectsWholeBatch", func(t *testing.T) {
		s := newTestSet(t)
		err := s.Add(ctx, operator, []common.Address{reth, {}})
		assert.ErrorIs(t, err, engine.ErrInvalidAddress)
		assert.False(t, s.Contains(reth))
	})

	t.Run("RiskOperator_CannotMutate", func(t *testing.T) {
		s := newTestSet(t, steth)
		assert.ErrorIs(t, s.Add(ctx, riskOperator, []common.Address{reth}), engine.ErrUnauthorized)
		assert.ErrorIs(t, s.Remove(ctx, riskOperator, []common.Address{steth}), engine.ErrUnauthorized)
		assert.True(t, s.Contains(steth))
		assert.False(t, s.Contains(reth))
	})

	t.Run("Pools_Sorted", func(t *testing.T) {
		s := newTestSet(t, steth, seth, reth)
		assert.Equal(t, []common.Address{seth, steth, reth}, s.Pools())
	})

	t.Run("InvalidSeed", func(t *testing.T) {
		guard, err := access.NewGuard(staticRegistry{})
		require.NoError(t, err)
		_, err = NewPoolSet(guard, []common.Address{{}})
		assert.ErrorIs(t, err, engine.ErrInvalidAddress)

		_, err = NewPoolSet(nil, nil)
		assert.Error(t, err)
	})
}
