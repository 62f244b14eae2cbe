// Package app composes the compensation engine's storage layer and
// engine services into one wired graph, grounded in the teacher's
// cmd/appserver bootstrap (resolve a DSN, fall back to in-memory
// storage, build one application object, defer its shutdown). Both
// cmd/planctl and cmd/engined build an App instead of duplicating
// wiring: a CLI invocation and the long-running daemon need the exact
// same object graph, just driven differently (one-shot vs cron).
package app

import (
	"context"
	"fmt"

	"github.com/r3e-network/mlm-compensation-engine/internal/activation"
	"github.com/r3e-network/mlm-compensation-engine/internal/binaryengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/bvdistributor"
	"github.com/r3e-network/mlm-compensation-engine/internal/bvledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/epin"
	"github.com/r3e-network/mlm-compensation-engine/internal/eventbus"
	"github.com/r3e-network/mlm-compensation-engine/internal/franchise"
	"github.com/r3e-network/mlm-compensation-engine/internal/fundengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/ledger"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/placement"
	"github.com/r3e-network/mlm-compensation-engine/internal/rankengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/memory"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/postgres"
	"github.com/r3e-network/mlm-compensation-engine/internal/store/rediscache"
)

// App is the fully wired dependency graph. Fields are exported so
// cmd/planctl and cmd/engined can reach straight into whichever
// engine a subcommand or cron trigger needs.
type App struct {
	Config *config.Config
	Store  store.Store
	Bus    *eventbus.Bus

	Ledger       *ledger.Service
	Rank         *rankengine.Service
	BVLedger     *bvledger.Service
	BVDist       *bvdistributor.Service
	Fund         *fundengine.Service
	EPIN         *epin.Service
	Placement    *placement.Service
	Activation   *activation.Service
	Franchise    *franchise.Service
	Binary       *binaryengine.Service

	closers []func() error
}

// New initializes logging from cfg, opens the configured storage
// backend, and wires every engine service together. The returned App must be
// closed by the caller.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logging.InitDefault("mlm-engine", cfg.LogLevel, cfg.LogFormat)

	baseStore, closeBase, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var activeStore store.Store = baseStore
	var cacheStore *rediscache.Store
	closers := []func() error{closeBase}

	if cfg.RedisEnabled {
		cache, err := rediscache.New(ctx, baseStore, cfg.RedisAddr, 0)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		activeStore = cache
		cacheStore = cache
		closers = append(closers, cache.Close)
	}

	bus := eventbus.New()
	ledgerSvc := ledger.New(activeStore)
	rankSvc := rankengine.New(activeStore, ledgerSvc, bus)
	bvLedgerSvc := bvledger.New(activeStore, bus, cfg)
	bvDistSvc := bvdistributor.New(activeStore, ledgerSvc, bus, cfg)
	fundSvc := fundengine.New(activeStore, ledgerSvc)
	epinSvc := epin.New(activeStore, cfg)
	placementSvc := placement.New(activeStore)
	activationSvc := activation.New(activeStore, bvLedgerSvc, ledgerSvc, bus)
	franchiseSvc := franchise.New(activeStore, ledgerSvc, bvLedgerSvc, bus)
	binarySvc := binaryengine.New(activeStore, ledgerSvc, rankSvc)

	if cacheStore != nil {
		// A rank advance invalidates the two cached eligibility lists
		// bvdistributor and fundengine read through (spec.md §4.F
		// note: royalty/fund eligibility depends on current rank).
		eventbus.Subscribe(bus, func(ctx context.Context, _ eventbus.RankAdvancedEvent) error {
			return cacheStore.InvalidateRankCaches(ctx)
		})
	}

	return &App{
		Config:     cfg,
		Store:      activeStore,
		Bus:        bus,
		Ledger:     ledgerSvc,
		Rank:       rankSvc,
		BVLedger:   bvLedgerSvc,
		BVDist:     bvDistSvc,
		Fund:       fundSvc,
		EPIN:       epinSvc,
		Placement:  placementSvc,
		Activation: activationSvc,
		Franchise:  franchiseSvc,
		Binary:     binarySvc,
		closers:    closers,
	}, nil
}

// Close releases every resource opened by New, in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	if cfg.DatabaseURL == "" {
		s := memory.New()
		return s, func() error { return nil }, nil
	}
	s, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConnections)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return s, s.Close, nil
}
