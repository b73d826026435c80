package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/creditgate/creditgate/internal/config"
	"github.com/creditgate/creditgate/internal/core/engine"
	"github.com/creditgate/creditgate/internal/core/store"
	"github.com/creditgate/creditgate/internal/core/throttle"
)

// service bundles the components behind the decision endpoint.
type service struct {
	backend  store.Backend
	throttle *throttle.Throttle
	engine   *engine.Engine
}

func (s *service) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	backend, err := store.OpenBackend(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return backend, nil
}

// buildService opens the store and wires the throttle and engine from cfg.
func buildService(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...throttle.Option) (*service, error) {
	backend, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	thr := throttle.New(throttleLimits(cfg), opts...)
	eng := engine.New(thr, backend, decisionPolicy(cfg))
	eng.Logger = logger

	return &service{backend: backend, throttle: thr, engine: eng}, nil
}

func throttleLimits(cfg *config.Config) throttle.Limits {
	return throttle.Limits{
		MaxRequestsPerWindow: cfg.Throttle.MaxRequestsPerWindow,
		Window:               cfg.Throttle.WindowDuration,
		BlockDuration:        cfg.Throttle.BlockDuration,
		MaxAttempts:          cfg.Decision.MaxAttempts,
	}
}

func decisionPolicy(cfg *config.Config) engine.Policy {
	return engine.NewPolicy(cfg.Decision.MaxAttempts, cfg.Decision.CashBalanceRatio, cfg.Decision.MonthlyRevenueRatio)
}
