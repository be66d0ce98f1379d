package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/logging"
	"github.com/teemow/slotkeeper/internal/scheduler"
	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/store"
)

// runtime holds the components shared by the serve and digest commands.
type runtime struct {
	cfg       config.Config
	logger    *slog.Logger
	store     store.Store
	scheduler *scheduler.Service
	server    *server.ServerContext
}

// loadConfig reads the configuration file and applies the debug flag.
func loadConfig(path string, debugMode bool) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	if debugMode {
		cfg.Log.Level = "debug"
	}
	logger := logging.New(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newRuntime opens the store and builds the scheduler on top of it. The
// store is instrumented when provider is enabled.
func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, provider *instrumentation.Provider) (*runtime, error) {
	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open appointment store: %w", err)
	}

	var metrics *instrumentation.Metrics
	if provider != nil && provider.Enabled() {
		metrics = provider.Metrics()
		st = store.NewInstrumented(st, metrics)
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics),
	}
	if len(cfg.Resolution.DefaultStrategy) > 0 {
		strategy, err := scheduler.ParseStrategyMap(cfg.Resolution.DefaultStrategy)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("invalid resolution.default_strategy: %w", err)
		}
		opts = append(opts, scheduler.WithDefaultStrategy(strategy))
	}
	svc := scheduler.New(st, cfg.Scheduling, opts...)

	sc := server.NewServerContext(ctx, svc, st, cfg, logger)
	if metrics != nil {
		sc.SetMetrics(metrics)
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		scheduler: svc,
		server:    sc,
	}, nil
}

// Close shuts down the server context and closes the store.
func (r *runtime) Close() error {
	return errors.Join(r.server.Shutdown(), r.store.Close())
}
