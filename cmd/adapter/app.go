package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/defistate/defistate-exchange-adapters-go/chains"
	ethchain "github.com/defistate/defistate-exchange-adapters-go/chains/ethereum"
	"github.com/defistate/defistate-exchange-adapters-go/cmd/adapter/config"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	curveadapter "github.com/defistate/defistate-exchange-adapters-go/protocols/curve/adapter"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry"
	"github.com/defistate/defistate-exchange-adapters-go/protocols/poolregistry/indexer"
	tokenindexer "github.com/defistate/defistate-exchange-adapters-go/protocols/tokenregistry/indexer"
	uniswapv2adapter "github.com/defistate/defistate-exchange-adapters-go/protocols/uniswapv2/adapter"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
)

// venue is one configured adapter and the pools it was given.
type venue struct {
	adapter engine.Adapter
	pools   indexer.IndexedPoolRegistry
}

type app struct {
	readers chains.Readers
	tokens  tokenindexer.IndexedTokenRegistry
	venues  map[string]venue
	curve   *curveadapter.Adapter
	logger  *slog.Logger
	closers []func()
}

// builder turns a loaded configuration into a ready app. Tests swap it for
// one backed by an in-memory ledger.
type builder func(ctx context.Context, cfg *config.AdapterConfig, logger *slog.Logger, reg prometheus.Registerer) (*app, error)

// dialApp connects to the configured node and builds every venue on top of it.
func dialApp(ctx context.Context, cfg *config.AdapterConfig, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	switch cfg.ChainID.Uint64() {
	case chains.Mainnet:
	default:
		return nil, fmt.Errorf("no chain backend for chain with ID %d", cfg.ChainID.Uint64())
	}

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}
	a, err := connect(ctx, rpc, cfg, logger, reg)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	a.closers = append(a.closers, rpc.Close)
	return a, nil
}

func connect(ctx context.Context, rpc *ethclient.Client, cfg *config.AdapterConfig, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain ID: %w", err)
	}
	if chainID.Cmp(cfg.ChainID) != 0 {
		return nil, fmt.Errorf("node is on chain %s, config expects %s", chainID, cfg.ChainID)
	}

	addresses := chains.Addresses{
		RoleRegistry: cfg.RoleRegistry,
		PriceOracle:  cfg.PriceOracle,
	}
	if cfg.Curve != nil {
		addresses.RegistryExchange = cfg.Curve.RegistryExchange
	}
	opts := []ethchain.Option{ethchain.WithPrometheusRegisterer(reg)}
	if cfg.BlockNumber != nil {
		opts = append(opts, ethchain.WithBlockNumber(cfg.BlockNumber))
	}
	client, err := ethchain.NewClient(rpc, logger.With("component", "chain-client"), addresses, opts...)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, client, indexer.New(), logger, reg)
}

// newApp wires one adapter per configured venue onto readers.
func newApp(cfg *config.AdapterConfig, readers chains.Readers, idx chains.PoolRegistryIndexer, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	tokens, err := tokenindexer.New().Index(cfg.Tokens)
	if err != nil {
		return nil, err
	}
	a := &app{
		readers: readers,
		tokens:  tokens,
		venues:  make(map[string]venue, len(cfg.Routers)+1),
		logger:  logger,
	}

	for _, r := range cfg.Routers {
		pools, err := idx.Index(poolregistry.PoolRegistry{Pools: r.Pools})
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", r.Name, err)
		}
		adapter, err := uniswapv2adapter.NewAdapter(uniswapv2adapter.Config{
			Name:     r.Name,
			Router:   r.Address,
			Pools:    pools,
			Oracle:   readers,
			Tokens:   readers,
			Registry: readers,
			Logger:   logger.With("component", "adapter", "venue", r.Name),
		},
			uniswapv2adapter.WithPrometheusRegisterer(reg),
			uniswapv2adapter.WithInitialSlippage(cfg.Slippage),
		)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", r.Name, err)
		}
		a.venues[r.Name] = venue{adapter: adapter, pools: pools}
	}

	if cfg.Curve != nil {
		pools, err := idx.Index(poolregistry.PoolRegistry{Pools: cfg.Curve.Pools})
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", config.CurveVenue, err)
		}
		adapter, err := curveadapter.NewAdapter(curveadapter.Config{
			Name:             config.CurveVenue,
			RegistryExchange: cfg.Curve.RegistryExchange,
			Gateway:          cfg.Curve.Gateway,
			WrappedNative:    cfg.Curve.WrappedNative,
			Pools:            pools,
			PoolReader:       readers,
			ExchangeReader:   readers,
			Tokens:           readers,
			Registry:         readers,
			Logger:           logger.With("component", "adapter", "venue", config.CurveVenue),
		},
			curveadapter.WithPrometheusRegisterer(reg),
			curveadapter.WithInitialSlippage(cfg.Slippage),
			curveadapter.WithNativeAssetPools(cfg.Curve.NativeAssetPools),
		)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", config.CurveVenue, err)
		}
		a.curve = adapter
		a.venues[config.CurveVenue] = venue{adapter: adapter, pools: pools}
	}

	logger.Info("Venues ready", "venues", a.venueNames())
	return a, nil
}

// Close releases the node connection, if any.
func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
}

func (a *app) venue(name string) (venue, error) {
	v, ok := a.venues[name]
	if !ok {
		return venue{}, fmt.Errorf("unknown venue %q, configured: %v", name, a.venueNames())
	}
	return v, nil
}

func (a *app) venueNames() []string {
	names := make([]string, 0, len(a.venues))
	for name := range a.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
