package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Instruction is one unexecuted call: the caller sends Payload to Target.
// Payload is ABI-encoded calldata (selector followed by arguments).
type Instruction struct {
	Target  common.Address
	Payload []byte
}

// Selector returns the 4-byte function selector of the payload, or nil if the payload is too short.
func (i Instruction) Selector() []byte {
	if len(i.Payload) < 4 {
		return nil
	}
	return i.Payload[:4]
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s <- %s", i.Target.Hex(), hexutil.Encode(i.Payload))
}

type instructionJSON struct {
	Target  common.Address `json:"target"`
	Payload hexutil.Bytes  `json:"payload"`
}

// MarshalJSON encodes the payload as 0x-prefixed hex.
func (i Instruction) MarshalJSON() ([]byte, error) {
	return json.Marshal(instructionJSON{Target: i.Target, Payload: i.Payload})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (i *Instruction) UnmarshalJSON(data []byte) error {
	var raw instructionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Target = raw.Target
	i.Payload = raw.Payload
	return nil
}

// Codes is an ordered instruction sequence. Execution order is significant
// and must be preserved by whoever executes it.
type Codes []Instruction

// PoolDescriptor is immutable reference data describing a liquidity pool.
type PoolDescriptor struct {
	Pool common.Address `json:"pool" yaml:"pool"`

	// LPToken is the receipt token of the pool. Zero when the venue has none.
	LPToken common.Address `json:"lpToken,omitempty" yaml:"lp_token,omitempty"`

	// UnderlyingTokens[i] sits at venue-local coin index TokenIndexes[i].
	UnderlyingTokens []common.Address `json:"tokens" yaml:"tokens"`
	TokenIndexes     []int            `json:"tokenIndexes,omitempty" yaml:"token_indexes,omitempty"`

	StakingVault common.Address `json:"stakingVault,omitempty" yaml:"staking_vault,omitempty"`
	Deprecated   bool           `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// CoinCount is the number of coins the venue holds for this pool.
func (p PoolDescriptor) CoinCount() int {
	return len(p.UnderlyingTokens)
}

// HasLPToken reports whether the descriptor names an LP token.
func (p PoolDescriptor) HasLPToken() bool {
	return p.LPToken != (common.Address{})
}

// HasToken reports whether token is one of the pool's underlying tokens.
func (p PoolDescriptor) HasToken(token common.Address) bool {
	for _, t := range p.UnderlyingTokens {
		if t == token {
			return true
		}
	}
	return false
}

// CoinIndex returns the venue-local coin index of token.
// When TokenIndexes is empty the position in UnderlyingTokens is used.
func (p PoolDescriptor) CoinIndex(token common.Address) (int, error) {
	for i, t := range p.UnderlyingTokens {
		if t != token {
			continue
		}
		if len(p.TokenIndexes) == 0 {
			return i, nil
		}
		if i >= len(p.TokenIndexes) {
			return 0, fmt.Errorf("%w: pool %s has no coin index for token %s", ErrUnsupportedPoolShape, p.Pool.Hex(), token.Hex())
		}
		return p.TokenIndexes[i], nil
	}
	return 0, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, token.Hex(), p.Pool.Hex())
}

// Adapter is the uniform contract a vault uses to price and compile
// deposits and withdrawals against any venue.
type Adapter interface {
	CalculateAmountInLPToken(ctx context.Context, inputToken, pool, outputToken common.Address, inputAmount *big.Int) (*big.Int, error)
	GetLiquidityPoolTokenBalance(ctx context.Context, holder, inputToken, pool, outputToken common.Address) (*big.Int, error)
	GetAllAmountInToken(ctx context.Context, holder, inputToken, pool, outputToken common.Address) (*big.Int, error)
	GetSomeAmountInToken(ctx context.Context, inputToken, pool, outputToken common.Address, lpTokenAmount *big.Int) (*big.Int, error)

	GetDepositAllCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address) (Codes, error)
	GetDepositSomeCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (Codes, error)
	GetWithdrawAllCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address) (Codes, error)
	GetWithdrawSomeCodes(ctx context.Context, vault, inputToken, pool, outputToken common.Address, amount *big.Int) (Codes, error)

	CanStake(pool common.Address) bool
}
