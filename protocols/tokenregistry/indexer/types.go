package indexer

import (
	tokenregistry "github.com/defistate/defistate-exchange-adapters-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedTokenRegistry defines the methods for accessing indexed token labels.
type IndexedTokenRegistry interface {
	GetBySymbol(symbol string) (tokenregistry.Token, bool)
	GetByAddress(address common.Address) (tokenregistry.Token, bool)
	Resolve(ref string) (common.Address, error)
	Label(address common.Address) string
	All() []tokenregistry.Token
}
