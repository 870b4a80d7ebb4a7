package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a mutating call comes from the wrong identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnsupportedPoolShape is returned for a coin count / coin index combination no calculator handles.
	ErrUnsupportedPoolShape = errors.New("unsupported pool shape")
	// ErrInsufficientBalance is returned when a requested amount exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAddress is returned when a configuration setter receives the zero address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrPoolNotFound is returned when a pool has no registered descriptor.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrPoolDeprecated is returned when a deposit targets a deprecated pool.
	ErrPoolDeprecated = errors.New("pool is deprecated")
	// ErrTokenMismatch is returned when a token is not part of the pool.
	ErrTokenMismatch = errors.New("token mismatch")
)

// Role names an identity resolved from the registry.
type Role string

const (
	RoleOperator     Role = "operator"
	RoleRiskOperator Role = "riskOperator"
)

// CallerNotAuthorizedError reports which role a rejected caller was missing.
type CallerNotAuthorizedError struct {
	RequiredRole Role
}

func (e *CallerNotAuthorizedError) Error() string {
	return fmt.Sprintf("caller is not the %s", e.RequiredRole)
}

// Is makes errors.Is(err, ErrUnauthorized) hold for every role.
func (e *CallerNotAuthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}
