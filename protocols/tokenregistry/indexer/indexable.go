package indexer

import (
	"fmt"

	tokenregistry "github.com/defistate/defistate-exchange-adapters-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index validates tokens and indexes them by symbol and by address.
func (i *Indexer) Index(tokens []tokenregistry.Token) (IndexedTokenRegistry, error) {
	if err := tokenregistry.Validate(tokens); err != nil {
		return nil, err
	}
	return NewIndexableTokenRegistry(tokens), nil
}

// IndexableTokenRegistry provides fast, indexed access to token labels.
// It never changes after construction.
type IndexableTokenRegistry struct {
	bySymbol  map[string]tokenregistry.Token
	byAddress map[common.Address]tokenregistry.Token
	all       []tokenregistry.Token
}

// NewIndexableTokenRegistry indexes tokens without validating them; on a
// duplicate the later entry wins.
func NewIndexableTokenRegistry(tokens []tokenregistry.Token) *IndexableTokenRegistry {
	bySymbol := make(map[string]tokenregistry.Token, len(tokens))
	byAddress := make(map[common.Address]tokenregistry.Token, len(tokens))
	all := make([]tokenregistry.Token, len(tokens))
	copy(all, tokens)

	for _, t := range all {
		bySymbol[tokenregistry.NormalizeSymbol(t.Symbol)] = t
		byAddress[t.Address] = t
	}

	return &IndexableTokenRegistry{
		bySymbol:  bySymbol,
		byAddress: byAddress,
		all:       all,
	}
}

// GetBySymbol retrieves a token by symbol, ignoring case.
func (r *IndexableTokenRegistry) GetBySymbol(symbol string) (tokenregistry.Token, bool) {
	t, ok := r.bySymbol[tokenregistry.NormalizeSymbol(symbol)]
	return t, ok
}

// GetByAddress retrieves a token by its contract address.
func (r *IndexableTokenRegistry) GetByAddress(address common.Address) (tokenregistry.Token, bool) {
	t, ok := r.byAddress[address]
	return t, ok
}

// Resolve turns a hex address or a registered symbol into an address.
// Hex addresses need not be registered.
func (r *IndexableTokenRegistry) Resolve(ref string) (common.Address, error) {
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	if t, ok := r.GetBySymbol(ref); ok {
		return t.Address, nil
	}
	return common.Address{}, fmt.Errorf("%w: %q", tokenregistry.ErrUnknownToken, ref)
}

// Label returns the token's symbol, or its hex address when unregistered.
func (r *IndexableTokenRegistry) Label(address common.Address) string {
	if t, ok := r.byAddress[address]; ok {
		return t.Symbol
	}
	return address.Hex()
}

// All returns a defensive copy of the slice of all tokens in the registry.
func (r *IndexableTokenRegistry) All() []tokenregistry.Token {
	allCopy := make([]tokenregistry.Token, len(r.all))
	copy(allCopy, r.all)
	return allCopy
}
