// Package daemon composes all components into the fx application behind
// cmd/deskd and serves the Unix-socket event feed.
package daemon

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/auth"
	"github.com/deskwire/deskd/internal/bus"
	"github.com/deskwire/deskd/internal/config"
	"github.com/deskwire/deskd/internal/conversation"
	"github.com/deskwire/deskd/internal/dispatch"
	"github.com/deskwire/deskd/internal/lock"
	"github.com/deskwire/deskd/internal/logging"
	"github.com/deskwire/deskd/internal/presence"
	"github.com/deskwire/deskd/internal/rest"
	"github.com/deskwire/deskd/internal/session"
	"github.com/deskwire/deskd/internal/socket"
	"github.com/deskwire/deskd/internal/store"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideDispatcher,
			provideLock,
			provideStore,
			provideTokens,
			provideRestClient,
			provideTransport,
			provideManager,
			provideConversations,
			provideTracker,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideDispatcher(logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(logger)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
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
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTokens(cfg *config.Config) *auth.Static {
	return auth.NewStatic(cfg.Server.Token)
}

func provideRestClient(cfg *config.Config, tokens *auth.Static, logger *zap.Logger) *rest.Client {
	return rest.New(cfg.Server.APIURL, tokens, logger)
}

func provideTransport() socket.Transport {
	return socket.NewWebsocketTransport()
}

func provideManager(cfg *config.Config, t socket.Transport, d *dispatch.Dispatcher, tokens *auth.Static, logger *zap.Logger) *socket.Manager {
	return socket.NewManager(socket.Config{
		URL:         cfg.Server.WebsocketURL,
		AccountID:   cfg.Server.AccountID,
		BackoffBase: cfg.BackoffBase(),
		BackoffCap:  cfg.BackoffCap(),
		MaxAttempts: cfg.Sync.MaxReconnectAttempts,
	}, t, d, tokens, logger)
}

func provideConversations(cfg *config.Config, m *socket.Manager, api *rest.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *conversation.Store {
	return conversation.New(conversation.Config{
		SendTimeout: cfg.SendTimeout(),
	}, m, api, db, b, logger)
}

func provideTracker(cfg *config.Config, b *bus.Bus) *presence.Tracker {
	return presence.New(presence.Config{
		TypingTTL:       cfg.TypingTTL(),
		OnlineThreshold: cfg.OnlineThreshold(),
		RecentThreshold: cfg.RecentThreshold(),
	}, b, nil)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	manager *socket.Manager,
	convs *conversation.Store,
	tracker *presence.Tracker,
	d *dispatch.Dispatcher,
	tokens *auth.Static,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Handlers first, so the initial connect's events land.
			convs.Bind(d)
			tracker.Bind(d)

			if auth.ExpiresWithin(tokens.Token(), time.Hour) {
				logger.Warn("bearer token expires within the hour")
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("feed server error", zap.Error(err))
				}
			}()

			go func() {
				if err := manager.Connect(context.Background()); err != nil {
					var authErr *auth.Error
					if errors.As(err, &authErr) {
						logger.Error("initial connect rejected", zap.Error(err))
						return
					}
					// The manager keeps retrying with backoff on its own.
					logger.Warn("initial connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.Disconnect()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
