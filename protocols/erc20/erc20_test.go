package erc20

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalCodes(t *testing.T) {
	usdt := common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	router := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	amount := big.NewInt(1_000_000)

	codes, err := ApprovalCodes(usdt, router, amount)
	require.NoError(t, err)
	require.Len(t, codes, 2)

	approve := ABI.Methods["approve"]
	expectedAmounts := []*big.Int{big.NewInt(0), amount}
	for i, code := range codes {
		assert.Equal(t, usdt, code.Target)
		assert.Equal(t, approve.ID, code.Selector())

		args, err := approve.Inputs.Unpack(code.Payload[4:])
		require.NoError(t, err)
		require.Len(t, args, 2)
		assert.Equal(t, router, args[0].(common.Address))
		assert.Equal(t, 0, expectedAmounts[i].Cmp(args[1].(*big.Int)))
	}
}

func TestApprove_SelectorMatchesStandard(t *testing.T) {
	code, err := Approve(common.Address{}, common.Address{}, big.NewInt(1))
	require.NoError(t, err)
	// keccak256("approve(address,uint256)")[:4]
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, code.Selector())
	assert.Len(t, code.Payload, 4+32+32)
}
