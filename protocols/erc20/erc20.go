// Package erc20 holds the token ABI shared by every adapter and the
// approval builder used ahead of each venue call.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABIJSON is the subset of ERC-20 the adapters read and call.
const ABIJSON = `[
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ABI is the parsed form of ABIJSON.
var ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("erc20: invalid ABI: %v", err))
	}
	ABI = parsed
}

// TokenReader reads token state on behalf of the adapters.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Approve builds a single approve(spender, amount) call on token.
func Approve(token, spender common.Address, amount *big.Int) (engine.Instruction, error) {
	payload, err := ABI.Pack("approve", spender, amount)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("erc20: failed to pack approve: %w", err)
	}
	return engine.Instruction{Target: token, Payload: payload}, nil
}

// ApprovalCodes resets the allowance to zero before granting amount, which
// tokens that refuse non-zero to non-zero allowance changes require.
func ApprovalCodes(token, spender common.Address, amount *big.Int) (engine.Codes, error) {
	reset, err := Approve(token, spender, new(big.Int))
	if err != nil {
		return nil, err
	}
	grant, err := Approve(token, spender, amount)
	if err != nil {
		return nil, err
	}
	return engine.Codes{reset, grant}, nil
}
