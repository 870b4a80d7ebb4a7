package tokenregistry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownToken is returned when a symbol or address is not in the registry.
var ErrUnknownToken = errors.New("unknown token")

// Token labels a token address for operators. Decimals are never stored
// here; they are read from the chain on every quote.
type Token struct {
	Address common.Address `json:"address" yaml:"address"`
	Symbol  string         `json:"symbol" yaml:"symbol"`
}

// Validate rejects zero addresses, empty symbols, symbols that parse as an
// address and duplicates of either (symbols compare case-insensitively).
func Validate(tokens []Token) error {
	symbols := make(map[string]struct{}, len(tokens))
	addresses := make(map[common.Address]struct{}, len(tokens))
	for i, t := range tokens {
		if t.Address == (common.Address{}) {
			return fmt.Errorf("%w: token %d", engine.ErrInvalidAddress, i)
		}
		if NormalizeSymbol(t.Symbol) == "" {
			return fmt.Errorf("tokenregistry: token %s has no symbol", t.Address.Hex())
		}
		if common.IsHexAddress(t.Symbol) {
			return fmt.Errorf("tokenregistry: symbol %q looks like an address", t.Symbol)
		}
		key := NormalizeSymbol(t.Symbol)
		if _, dup := symbols[key]; dup {
			return fmt.Errorf("tokenregistry: duplicate symbol %q", t.Symbol)
		}
		if _, dup := addresses[t.Address]; dup {
			return fmt.Errorf("tokenregistry: duplicate address %s", t.Address.Hex())
		}
		symbols[key] = struct{}{}
		addresses[t.Address] = struct{}{}
	}
	return nil
}

// NormalizeSymbol is the lookup key for a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
