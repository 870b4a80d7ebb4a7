// Package access resolves privileged identities from an external registry
// on every call, so a role transfer in the registry applies to the very next call.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// Registry is the collaborator that owns role assignments.
type Registry interface {
	GetOperator(ctx context.Context) (common.Address, error)
	GetRiskOperator(ctx context.Context) (common.Address, error)
}

// Guard checks callers against the registry. It holds no role state.
type Guard struct {
	registry Registry
}

// NewGuard returns a Guard backed by registry.
func NewGuard(registry Registry) (*Guard, error) {
	if registry == nil {
		return nil, errors.New("access: registry is required")
	}
	return &Guard{registry: registry}, nil
}

// Resolve reads the current holder of role from the registry.
func (g *Guard) Resolve(ctx context.Context, role engine.Role) (common.Address, error) {
	var (
		holder common.Address
		err    error
	)
	switch role {
	case engine.RoleOperator:
		holder, err = g.registry.GetOperator(ctx)
	case engine.RoleRiskOperator:
		holder, err = g.registry.GetRiskOperator(ctx)
	default:
		return common.Address{}, fmt.Errorf("access: unknown role %q", role)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("access: failed to resolve %s: %w", role, err)
	}
	return holder, nil
}

// Require returns nil only if caller currently holds role.
func (g *Guard) Require(ctx context.Context, caller common.Address, role engine.Role) error {
	holder, err := g.Resolve(ctx, role)
	if err != nil {
		return err
	}
	// A registry that has not assigned the role yet answers with the zero address.
	if holder == (common.Address{}) || holder != caller {
		return &engine.CallerNotAuthorizedError{RequiredRole: role}
	}
	return nil
}
