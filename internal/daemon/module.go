// Package daemon composes the long-running process: cache, durable
// store, push transport, sync engine, outbox, and the local HTTP API.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"zapdesk/internal/backend"
	"zapdesk/internal/cache"
	"zapdesk/internal/config"
	"zapdesk/internal/durable"
	"zapdesk/internal/lock"
	"zapdesk/internal/logging"
	"zapdesk/internal/outbox"
	"zapdesk/internal/profile"
	"zapdesk/internal/registry"
	intsync "zapdesk/internal/sync"
	"zapdesk/internal/transport"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
	Listen  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideRegistry,
			provideStore,
			provideLock,
			provideDurable,
			providePersister,
			provideBackend,
			provideTransport,
			provideNotifier,
			provideEngine,
			provideSender,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideRegistry() *registry.Registry {
	return registry.New()
}

func provideStore(reg *registry.Registry, logger *zap.Logger) *cache.Store {
	return cache.New(reg, logger)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideDurable(p Params, _ *lock.Lock, logger *zap.Logger) (*durable.DB, error) {
	dbPath := profile.CacheDBPath(p.Profile)
	db, err := durable.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("durable cache initialized", zap.String("path", dbPath))
	return db, nil
}

// namespace resolves the per-user durable namespace. It falls back to
// the profile name when no identity is configured.
func namespace(p Params) string {
	if p.Config.Identity.UserID != "" {
		return p.Config.Identity.UserID
	}
	return p.Profile
}

func providePersister(p Params, db *durable.DB, store *cache.Store, reg *registry.Registry, logger *zap.Logger) *durable.Persister {
	return durable.NewPersister(db, store, reg, namespace(p), p.Config.SaveDebounce(), logger)
}

func provideBackend(p Params) *backend.Client {
	return backend.New(p.Config.API.BaseURL, p.Config.API.Token, p.Config.FetchTimeout())
}

func provideTransport(p Params, logger *zap.Logger) *transport.Client {
	return transport.NewClient(transport.Options{
		URL:         p.Config.Push.URL,
		BaseDelay:   p.Config.BaseDelay(),
		MaxDelay:    p.Config.MaxDelay(),
		MaxAttempts: p.Config.Push.MaxAttempts,
	}, logger)
}

func provideNotifier(logger *zap.Logger) intsync.Notifier {
	return &intsync.LogNotifier{Logger: logger}
}

func provideEngine(p Params, store *cache.Store, reg *registry.Registry, api *backend.Client, db *durable.DB, notifier intsync.Notifier, logger *zap.Logger) *intsync.Engine {
	return intsync.New(store, reg, api, db, notifier, intsync.Config{
		Namespace: namespace(p),
		PageSize:  p.Config.API.PageSize,
		TTL:       p.Config.TTL(),
	}, logger)
}

func provideSender(store *cache.Store, api *backend.Client, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(store, api, logger)
}

func provideServer(p Params, store *cache.Store, engine *intsync.Engine, sender *outbox.Sender, push *transport.Client, logger *zap.Logger) *Server {
	listen := p.Listen
	if listen == "" {
		listen = p.Config.Listen
	}
	return NewServer(listen, store, engine, sender, push, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, db *durable.DB, persister *durable.Persister, push *transport.Client, engine *intsync.Engine, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Seed from durable snapshots before anything hits the network.
			engine.Hydrate()
			persister.Start()

			engine.AttachTransport(push)
			if p.Config.Push.URL != "" {
				go func() {
					if err := push.Connect(context.Background()); err != nil {
						logger.Warn("initial push connect failed", zap.Error(err))
					}
				}()
			}

			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), p.Config.FetchTimeout())
				defer cancel()
				if err := engine.EnsureChats(ctx); err != nil {
					logger.Warn("initial chat fetch failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			push.Close()
			sender.Stop()
			persister.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing durable cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
