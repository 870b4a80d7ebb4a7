package access

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// RegistryABIJSON is the role registry contract read by Registry implementations.
const RegistryABIJSON = `[
	{"name":"getOperator","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"getRiskOperator","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// RegistryABI is the parsed form of RegistryABIJSON.
var RegistryABI abi.ABI

func init() {
	var err error
	if RegistryABI, err = abi.JSON(strings.NewReader(RegistryABIJSON)); err != nil {
		panic(fmt.Sprintf("access: invalid registry ABI: %v", err))
	}
}
