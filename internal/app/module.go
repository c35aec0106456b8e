// Package app composes the whole client core as an fx module: storage,
// store, request layer, sync engine, and realtime session, with lifecycle
// hooks in dependency order. The embedding host supplies credentials and
// drives connectivity; everything else is wired here.
package app

import (
	"context"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mingleapp/mingle/internal/api"
	"github.com/mingleapp/mingle/internal/appdir"
	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/cache"
	"github.com/mingleapp/mingle/internal/config"
	"github.com/mingleapp/mingle/internal/lock"
	"github.com/mingleapp/mingle/internal/logging"
	"github.com/mingleapp/mingle/internal/realtime"
	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/store"
	intsync "github.com/mingleapp/mingle/internal/sync"
)

// Params is the host-supplied configuration for the core.
type Params struct {
	// Profile names the on-disk profile under ~/.mingle/profiles.
	Profile string
	// Refresh exchanges a refresh token for fresh credentials. Token
	// issuance (login) belongs to the host.
	Refresh request.RefreshFunc
	// Dial overrides the default websocket transport, mainly for tests and
	// host-provided push channels. Nil means gorilla/websocket against the
	// configured realtime URL.
	Dial realtime.Dialer
	// Online is the initial reachability; the host feeds later changes into
	// the ConnectivityState this module provides.
	Online bool
}

// Module returns the fx module composing the client core.
func Module(p Params) fx.Option {
	return fx.Module("core",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStorage,
			provideCache,
			provideStore,
			provideConnectivity,
			provideTokens,
			provideOfflinePolicy,
			provideRequestClient,
			provideProfileAPI,
			provideMatchingAPI,
			provideEventsAPI,
			provideMessagingAPI,
			provideEngine,
			provideDialer,
			provideManager,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := appdir.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	return config.Load(appdir.ConfigPath(p.Profile))
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(appdir.LogPath(p.Profile), p.Profile, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(appdir.LockPath(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStorage(p Params, logger *zap.Logger) (cache.Storage, error) {
	path := appdir.CacheDBPath(p.Profile)
	storage, err := cache.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	logger.Info("cache storage opened", zap.String("path", path))
	return storage, nil
}

func provideCache(cfg *config.Config, storage cache.Storage, logger *zap.Logger) *cache.Cache {
	return cache.New("core", storage, cache.Policy{
		MaxAge:               cfg.Cache.MaxAge.Duration,
		StaleWhileRevalidate: cfg.Cache.StaleWhileRevalidate.Duration,
	}, logger)
}

func provideStore(c *cache.Cache, b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(c, b, logger)
}

func provideConnectivity(p Params, b *bus.Bus) *realtime.ConnectivityState {
	return realtime.NewConnectivityState(b, p.Online)
}

func provideTokens(p Params, cfg *config.Config, logger *zap.Logger) *request.TokenManager {
	return request.NewTokenManager(p.Refresh, cfg.Request.TokenRefreshLeeway.Duration, logger)
}

func provideOfflinePolicy(cfg *config.Config, conn *realtime.ConnectivityState) request.OfflinePolicy {
	return request.OfflinePolicy{
		Connectivity: conn.Online,
		Markers:      cfg.Request.OfflineMarkers,
	}
}

func provideRequestClient(cfg *config.Config, offline request.OfflinePolicy, tokens *request.TokenManager, logger *zap.Logger) *request.Client {
	return request.New(request.Config{
		BaseURL:        cfg.Request.BaseURL,
		Timeout:        cfg.Request.Timeout.Duration,
		MaxAttempts:    cfg.Request.MaxAttempts,
		RetryBaseDelay: cfg.Request.RetryBaseDelay.Duration,
		Offline:        offline,
	}, tokens, logger)
}

func provideProfileAPI(c *request.Client) api.Profile {
	return api.NewProfileClient(c)
}

func provideMatchingAPI(c *request.Client) api.Matching {
	return api.NewMatchingClient(c)
}

func provideEventsAPI(c *request.Client) api.Events {
	return api.NewEventsClient(c)
}

func provideMessagingAPI(c *request.Client) api.Messaging {
	return api.NewMessagingClient(c)
}

func provideEngine(s *store.Store, profile api.Profile, matching api.Matching, events api.Events, messaging api.Messaging, b *bus.Bus, offline request.OfflinePolicy, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(s, profile, matching, events, messaging, b, offline, logger)
}

func provideDialer(p Params, cfg *config.Config, tokens *request.TokenManager, logger *zap.Logger) realtime.Dialer {
	if p.Dial != nil {
		return p.Dial
	}
	return func(ctx context.Context) (realtime.Transport, error) {
		header := http.Header{}
		if token, err := tokens.Token(ctx); err == nil {
			header.Set("Authorization", "Bearer "+token)
		}
		return realtime.WebsocketDialer(cfg.Realtime.URL, header, logger)(ctx)
	}
}

func provideManager(s *store.Store, b *bus.Bus, dial realtime.Dialer, engine *intsync.Engine, conn *realtime.ConnectivityState, cfg *config.Config, logger *zap.Logger) *realtime.Manager {
	return realtime.NewManager(s, b, dial, engine, conn, realtime.Options{
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval.Duration,
		ReconnectDelay:    cfg.Realtime.ReconnectDelay.Duration,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, s *store.Store, engine *intsync.Engine, manager *realtime.Manager, lk *lock.Lock, storage cache.Storage, b *bus.Bus, tokens *request.TokenManager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Hydrate before anything can dispatch.
			s.Hydrate()

			// A failed refresh means the host must re-authenticate; the UI
			// hears about it on the bus.
			tokens.OnAuthExpired(func() {
				b.Publish(bus.Now(bus.KindAuthExpired, nil))
			})

			engine.Start(context.Background())
			manager.Start(context.Background())
			logger.Info("core started")
			return nil
		},
		OnStop: func(context.Context) error {
			manager.Stop()
			engine.Stop()
			b.Close()
			if err := storage.Close(); err != nil {
				logger.Warn("error closing cache storage", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing profile lock", zap.Error(err))
			}
			logger.Info("core stopped")
			return nil
		},
	})
}
