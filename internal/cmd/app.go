package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/assignment"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/config"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/dependency"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/graph"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/logging"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/metrics"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/reassign"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/scopelock"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store/badgerstore"
)

// app holds the engine components for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    store.Backend
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	bus      *event.Bus
	deps     *dependency.Manager
	engine   *assignment.Engine
	reassign *reassign.Orchestrator
	traces   *traceSink

	tenant string
	format string
	out    io.Writer
	// published collects events for text output.
	published []event.Event
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	logger, err := newEngineLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	backend, err := openStore(cfg.Store, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	traces, err := startTracing(viper.GetString("trace_file"))
	if err != nil {
		_ = backend.Close()
		_ = logger.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  backend,
		traces: traces,
		tenant: viper.GetString("tenant"),
		format: viper.GetString("output"),
		out:    out,
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.New(a.registry, cfg.Metrics.Namespace)
	}

	locks := scopelock.New()
	a.deps = dependency.NewManager(backend,
		dependency.WithLogger(logger),
		dependency.WithMetrics(a.metrics),
		dependency.WithLocks(locks),
		dependency.WithWorkers(backend),
		dependency.WithLimits(graph.Limits{
			MaxNodes: cfg.Scheduler.MaxGraphNodes,
			MaxEdges: cfg.Scheduler.MaxGraphEdges,
		}),
		dependency.WithSlackTolerance(cfg.Scheduler.CriticalPathTolerance),
		dependency.WithCriticalPathTimeout(cfg.Scheduler.CriticalPathTimeout()),
	)
	a.engine = assignment.NewEngine(backend, backend,
		assignment.WithLogger(logger),
		assignment.WithMetrics(a.metrics),
		assignment.WithLocks(locks),
		assignment.WithCapacity(cfg.Assignment.MaxActiveTasks),
		assignment.WithWeights(cfg.Assignment.WorkloadWeight, cfg.Assignment.UrgentWeight),
	)
	a.reassign = reassign.New(a.engine, backend, backend,
		reassign.WithLogger(logger),
		reassign.WithMetrics(a.metrics),
	)

	a.bus = event.NewBus(logger)
	a.bus.SubscribeAll(func(e event.Event) {
		logger.WithTenant(e.TenantID()).Info("event published", "type", e.EventType())
		a.published = append(a.published, e)
	})

	return a, nil
}

func newEngineLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if cfg.Dir == "" {
		return logging.NewWriterLogger(os.Stderr, cfg.Level), nil
	}
	logger, err := logging.NewLoggerWithRotation(cfg.Dir, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

func openStore(cfg config.StoreConfig, logger *logging.Logger) (store.Backend, error) {
	if cfg.InMemory {
		return store.NewMemory(), nil
	}
	path := cfg.ResolvePath(config.DataDir())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s, err := badgerstore.Open(badgerstore.Config{
		Path:       path,
		SyncWrites: cfg.SyncWrites,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return s, nil
}

// publish hands events to the bus.
func (a *app) publish(events []event.Event) {
	a.bus.PublishAll(events)
}

// close flushes metrics and spans and releases the store and log.
func (a *app) close() error {
	var firstErr error
	if err := a.traces.shutdown(context.Background()); err != nil {
		firstErr = fmt.Errorf("failed to flush traces: %w", err)
	}
	if path := viper.GetString("metrics_file"); path != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// withApp loads the configuration, builds the app, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := newApp(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}
