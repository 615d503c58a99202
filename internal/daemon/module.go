package daemon

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/bus"
	"github.com/krishhrana/whatsapp-mcp/internal/config"
	"github.com/krishhrana/whatsapp-mcp/internal/delivery"
	"github.com/krishhrana/whatsapp-mcp/internal/lock"
	"github.com/krishhrana/whatsapp-mcp/internal/logging"
	"github.com/krishhrana/whatsapp-mcp/internal/mcpserver"
	"github.com/krishhrana/whatsapp-mcp/internal/probe"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/status"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// Params holds the validated configuration passed to the fx module.
type Params struct {
	Config  *config.Config
	Version string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p, p.Config),
		fx.Provide(
			NewLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideQuery,
			provideDelivery,
			provideMCP,
			provideProber,
			provideHealth,
			provideTransport,
		),
		fx.Invoke(registerLifecycle),
	)
}

// NewLogger builds the daemon logger from cfg. fx event logging reuses it
// through fx.WithLogger.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return logging.New(cfg.LogPath, "wppmcp", lvl)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	dir := filepath.Dir(cfg.HealthSocket)
	logger.Info("acquiring runtime lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("runtime lock acquired")
	return l, nil
}

// provideStore opens the archive read-only. It depends on the lock so a
// second daemon fails before touching the store.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.OpenReadOnly(cfg.StoreLocation)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", zap.String("path", cfg.StoreLocation))
	return db, nil
}

func provideQuery(db *store.DB, logger *zap.Logger) *query.Service {
	return query.New(db, logger)
}

func provideDelivery(cfg *config.Config, logger *zap.Logger) *delivery.Client {
	return delivery.New(cfg.DeliveryBaseURL, cfg.DeliveryTimeout.Duration, logger)
}

func provideMCP(p Params, q *query.Service, d *delivery.Client, logger *zap.Logger) *mcpserver.Server {
	return mcpserver.New(q, d,
		mcpserver.WithVersion(p.Version),
		mcpserver.WithLogger(logger),
		mcpserver.WithBridgeToken(p.Config.DeliveryToken),
	)
}

func provideProber(cfg *config.Config, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) *probe.Prober {
	return probe.New(db, m, b, cfg.ProbeInterval.Duration, logger)
}

func provideHealth(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*HealthServer, error) {
	return NewHealthServer(cfg.HealthSocket, logger)
}

func provideTransport(cfg *config.Config, mcp *mcpserver.Server, sd fx.Shutdowner, logger *zap.Logger) *Transport {
	return NewTransport(cfg, mcp, logger, func() {
		if err := sd.Shutdown(); err != nil {
			logger.Warn("shutdown request failed", zap.Error(err))
		}
	})
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, health *HealthServer, prober *probe.Prober, transport *Transport, db *store.DB, lk *lock.Lock, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	var checks *CheckLog
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			health.Follow(b, machine)
			checks = FollowChecks(b, logger)
			go func() {
				if err := health.Start(); err != nil {
					logger.Error("health server error", zap.Error(err))
				}
			}()

			// First check runs before tools are reachable.
			prober.Start(context.Background())

			if err := transport.Start(); err != nil {
				return err
			}
			logger.Info("daemon started", zap.String("transport", cfg.Transport), zap.String("store", cfg.StoreLocation))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := machine.Transition(status.Stopping, "shutdown"); err != nil {
				logger.Debug("state not updated", zap.Error(err))
			}
			if err := transport.Stop(ctx); err != nil {
				logger.Warn("transport stop", zap.Error(err))
			}
			prober.Stop()
			if checks != nil {
				checks.Stop()
			}
			health.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
