package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/quorumworks/govpilot/internal/coordinator"
	"github.com/quorumworks/govpilot/internal/discovery"
	"github.com/quorumworks/govpilot/internal/engine"
	"github.com/quorumworks/govpilot/internal/identity"
	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/provider"
	"github.com/quorumworks/govpilot/internal/rpc"
	"github.com/quorumworks/govpilot/internal/store"
	"github.com/quorumworks/govpilot/pkg/market"
	"github.com/quorumworks/govpilot/pkg/registry"
)

// votingEnv bundles the components a voting command needs.
type votingEnv struct {
	Pool       *provider.Pool
	Exec       *rpc.Executor
	Client     registry.Client
	Scanner    *discovery.Scanner
	Engine     *engine.Engine
	Identities []model.VotingIdentity
	Store      store.Store
	Coord      *coordinator.Coordinator
}

// Close releases the store connection.
func (e *votingEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// buildReadPath wires the pool, executor, registry client, and scanner: the
// components shared by read-only discovery and full voting rounds.
func buildReadPath() (*provider.Pool, *rpc.Executor, registry.Client, *discovery.Scanner) {
	endpoints := make([]provider.Endpoint, len(cfg.Providers))
	for i, p := range cfg.Providers {
		name := p.Name
		if name == "" {
			name = p.URL
		}
		endpoints[i] = provider.Endpoint{
			URL:      p.URL,
			Name:     name,
			Priority: p.Priority,
		}
	}

	pool := provider.NewPool(endpoints, provider.PoolConfig{
		MaxFailures:       cfg.Pool.MaxFailures,
		RateLimitInterval: time.Duration(cfg.Pool.RateLimitMs) * time.Millisecond,
	})

	client := registry.NewClient(registry.WithContract(cfg.Registry.Contract))

	exec := rpc.NewExecutor(pool, client)
	if cfg.Pool.OutboundPaceMs > 0 {
		exec = exec.WithPacer(rate.NewLimiter(rate.Every(time.Duration(cfg.Pool.OutboundPaceMs)*time.Millisecond), 1))
	}

	scanner := discovery.NewScanner(exec, client, discovery.ScanConfig{
		WindowSize:     cfg.Scan.WindowSize,
		MaxWindow:      cfg.Scan.MaxWindow,
		BaseDelay:      time.Duration(cfg.Scan.BaseDelayMs) * time.Millisecond,
		ChunkSize:      cfg.Scan.ChunkSize,
		ChunkDelayStep: time.Duration(cfg.Scan.ChunkDelayStepMs) * time.Millisecond,
		ChunkPause:     time.Duration(cfg.Scan.ChunkPauseMs) * time.Millisecond,
		RateLimitPause: time.Duration(cfg.Scan.RateLimitPauseMs) * time.Millisecond,
	})

	return pool, exec, client, scanner
}

// buildEngine resolves the configured policy into a decision engine.
func buildEngine() (*engine.Engine, error) {
	policy, err := engine.PolicyByName(cfg.Engine.Policy)
	if err != nil {
		return nil, eris.Wrap(err, "resolve policy")
	}
	return engine.New(policy, engine.Config{
		MinDescriptionLen: cfg.Engine.MinDescriptionLen,
		StableIdentifiers: cfg.Engine.StableIdentifiers,
		AssetSymbols:      cfg.Engine.AssetSymbols,
	}), nil
}

// initStore opens the configured report store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initVoting wires everything a voting round needs.
func initVoting(ctx context.Context) (*votingEnv, error) {
	pool, exec, client, scanner := buildReadPath()

	eng, err := buildEngine()
	if err != nil {
		return nil, err
	}

	entries := make([]identity.Entry, len(cfg.Identities))
	for i, id := range cfg.Identities {
		entries[i] = identity.Entry{Address: id.Address, KeyRef: id.KeyRef}
	}
	identities, err := identity.Load(entries)
	if err != nil {
		return nil, eris.Wrap(err, "load identities")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	coord := coordinator.New(scanner, eng, exec, client, identities, coordinator.Config{
		MaxProposalsPerRound: cfg.Round.MaxProposals,
		RoundBudget:          time.Duration(cfg.Round.BudgetSecs) * time.Second,
		IdentityDelay:        time.Duration(cfg.Round.IdentityDelayMs) * time.Millisecond,
		IdentityDelayStep:    time.Duration(cfg.Round.IdentityDelayStepMs) * time.Millisecond,
		ProposalDelay:        time.Duration(cfg.Round.ProposalDelayMs) * time.Millisecond,
		PriorityAsset:        cfg.Round.PriorityAsset,
		GasLimit:             cfg.Gas.Limit,
		MarketSymbols:        cfg.Market.Symbols,
	}).WithSink(st)

	if cfg.Gas.StaticPriceWei > 0 {
		coord = coord.WithGasPricer(registry.StaticGasPricer(cfg.Gas.StaticPriceWei))
	} else {
		coord = coord.WithGasPricer(registry.NewGasPricer())
	}

	if cfg.Market.Key != "" {
		coord = coord.WithMarket(market.NewClient(cfg.Market.Key, market.WithBaseURL(cfg.Market.BaseURL)))
	}

	return &votingEnv{
		Pool:       pool,
		Exec:       exec,
		Client:     client,
		Scanner:    scanner,
		Engine:     eng,
		Identities: identities,
		Store:      st,
		Coord:      coord,
	}, nil
}
