package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/tokenregistry"
	"github.com/defistate/defistate-exchange-adapters-go/slippage"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// CurveVenue is the venue name the Curve adapter is registered under.
const CurveVenue = "curve"

// RouterConfig is one Uniswap-V2-style venue.
type RouterConfig struct {
	Name    string                  `yaml:"name"`
	Address common.Address          `yaml:"address"`
	Pools   []engine.PoolDescriptor `yaml:"pools"`
}

// CurveConfig is the Curve venue with its registry exchange and gateway.
type CurveConfig struct {
	RegistryExchange common.Address          `yaml:"registry_exchange"`
	Gateway          common.Address          `yaml:"gateway"`
	WrappedNative    common.Address          `yaml:"wrapped_native"`
	NativeAssetPools []common.Address        `yaml:"native_asset_pools"`
	Pools            []engine.PoolDescriptor `yaml:"pools"`
}

type AdapterConfig struct {
	RPCURL       string         `yaml:"rpc_url"`
	ChainID      *big.Int       `yaml:"chain_id"`
	BlockNumber  *big.Int       `yaml:"block_number"` // optional; latest when unset
	RoleRegistry common.Address `yaml:"role_registry"`
	PriceOracle  common.Address `yaml:"price_oracle"`

	// Tokens labels addresses so commands accept symbols.
	Tokens   []tokenregistry.Token `yaml:"tokens"`
	Routers  []RouterConfig        `yaml:"routers"`
	Curve    *CurveConfig          `yaml:"curve"`
	Slippage []slippage.Entry      `yaml:"slippage"`
}

// LoadConfig reads a configuration file from the given path, unmarshals it
// into an AdapterConfig and validates it.
func LoadConfig(path string) (*AdapterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg AdapterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields every command needs and the shape of each venue.
func (c *AdapterConfig) Validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpc_url is required")
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return errors.New("config: chain_id is required")
	}
	if c.RoleRegistry == (common.Address{}) {
		return fmt.Errorf("%w: config: role_registry", engine.ErrInvalidAddress)
	}
	if len(c.Routers) > 0 && c.PriceOracle == (common.Address{}) {
		return fmt.Errorf("%w: config: price_oracle is required with routers", engine.ErrInvalidAddress)
	}

	if err := tokenregistry.Validate(c.Tokens); err != nil {
		return fmt.Errorf("config: tokens: %w", err)
	}

	names := make(map[string]struct{}, len(c.Routers))
	for i, r := range c.Routers {
		if r.Name == "" {
			return fmt.Errorf("config: router %d has no name", i)
		}
		if r.Name == CurveVenue {
			return fmt.Errorf("config: router name %q is reserved", r.Name)
		}
		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("config: duplicate router %q", r.Name)
		}
		names[r.Name] = struct{}{}
		if r.Address == (common.Address{}) {
			return fmt.Errorf("%w: config: router %q", engine.ErrInvalidAddress, r.Name)
		}
		if err := (poolregistry.PoolRegistry{Pools: r.Pools}).Validate(); err != nil {
			return fmt.Errorf("config: router %q: %w", r.Name, err)
		}
	}

	if c.Curve != nil {
		for field, addr := range map[string]common.Address{
			"registry_exchange": c.Curve.RegistryExchange,
			"gateway":           c.Curve.Gateway,
			"wrapped_native":    c.Curve.WrappedNative,
		} {
			if addr == (common.Address{}) {
				return fmt.Errorf("%w: config: curve.%s", engine.ErrInvalidAddress, field)
			}
		}
		for _, pool := range c.Curve.NativeAssetPools {
			if pool == (common.Address{}) {
				return fmt.Errorf("%w: config: curve.native_asset_pools", engine.ErrInvalidAddress)
			}
		}
		if err := (poolregistry.PoolRegistry{Pools: c.Curve.Pools}).Validate(); err != nil {
			return fmt.Errorf("config: curve: %w", err)
		}
	}

	for _, e := range c.Slippage {
		if e.Pool == (common.Address{}) || e.WantToken == (common.Address{}) {
			return fmt.Errorf("%w: config: slippage entry", engine.ErrInvalidAddress)
		}
		if e.ToleranceBps > slippage.MaxToleranceBps {
			return fmt.Errorf("config: %w: %d bps", slippage.ErrToleranceOutOfRange, e.ToleranceBps)
		}
	}
	return nil
}

// Venues lists the configured venue names, routers first.
func (c *AdapterConfig) Venues() []string {
	venues := make([]string, 0, len(c.Routers)+1)
	for _, r := range c.Routers {
		venues = append(venues, r.Name)
	}
	if c.Curve != nil {
		venues = append(venues, CurveVenue)
	}
	return venues
}
