// Package app wires the predixa server runtime: config, logging, stores, HTTP routes and the
// realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	authapi "predixa/cmd/internal/auth/api"
	"predixa/cmd/internal/auth/session"
	"predixa/cmd/internal/migrate"
	"predixa/cmd/internal/realtime"
	"predixa/cmd/identity"
	"predixa/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App owns the HTTP server wiring and every long-lived dependency.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	users    identity.Directory
	sessions *session.Service
	auth     *authapi.Handler
	hub      *realtime.Hub
	ws       *realtime.WSGateway

	registry *prometheus.Registry
}

// New constructs a fully wired App from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	codec, err := session.NewCodec(sessCfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{cfg: cfg, log: log, registry: reg}

	users, refresh, err := a.openStores(context.Background(), pwCfg)
	if err != nil {
		return nil, err
	}
	a.users = users

	a.sessions, err = session.NewService(codec, a.users, refresh,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithPasswordConfig(pwCfg),
	)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	authCfg := authapi.LoadConfigFromEnv()
	if cfg.Production() {
		authCfg.CookieSecure = true
	}
	a.auth, err = authapi.NewHandler(log, a.sessions, authCfg)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	rtMetrics := realtime.NewMetrics(reg)
	a.hub = realtime.NewHub(log, rtMetrics)
	a.ws, err = realtime.NewWSGateway(log, a.hub, a.sessions, realtime.WithGatewayMetrics(rtMetrics))
	if err != nil {
		a.closeDB()
		return nil, err
	}

	return a, nil
}

// openStores selects the user directory and refresh-token store from cfg.UserStore.
func (a *App) openStores(ctx context.Context, pwCfg password.Config) (identity.Directory, session.RefreshStore, error) {
	cfg := a.cfg

	if cfg.DatabaseURL != "" {
		if cfg.DBMigrate {
			if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			a.log.Info("db.migrate.done")
		}

		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		a.dbPool = pool
	}

	switch cfg.UserStore {
	case UserStorePostgres:
		users, err := identity.NewPostgresStore(a.dbPool,
			identity.WithSchema(cfg.DBSchema),
			identity.WithPasswordConfig(pwCfg),
		)
		if err != nil {
			a.closeDB()
			return nil, nil, err
		}
		tokens, err := session.NewPostgresStore(a.dbPool, session.WithSchema(cfg.DBSchema))
		if err != nil {
			a.closeDB()
			return nil, nil, err
		}
		a.log.Info("store.postgres", "schema", cfg.DBSchema)
		return users, tokens, nil

	default:
		users, err := identity.NewDemoDirectory(pwCfg, identity.DefaultDemoUsers(cfg.DemoPassword)...)
		if err != nil {
			a.closeDB()
			return nil, nil, err
		}
		tokens := session.NewMemoryStore()
		a.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "predixa",
			Subsystem: "auth",
			Name:      "memory_refresh_principals",
			Help:      "Principals holding a refresh-token set in the in-memory store.",
		}, func() float64 { return float64(tokens.Principals()) }))

		a.log.Warn("store.demo", "users", users.Len(), "note", "in-memory users and sessions are lost on restart")
		return users, tokens, nil
	}
}

// Handler returns the complete HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, routeDeps{
		log:    a.log,
		cfg:    a.cfg,
		dbPool: a.dbPool,
		ws:     a.ws,
		auth:   a.auth,
		gather: a.registry,
	})

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log)
}

// Hub exposes the realtime hub so server-side producers can broadcast to an organization.
func (a *App) Hub() *realtime.Hub { return a.hub }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"user_store", a.cfg.UserStore,
		"db_enabled", a.dbPool != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.closeDB()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	a.log.Info("ws.drain", "clients", a.hub.ClientCount(), "rooms", a.hub.RoomCount())
	a.hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeDB()
		return err
	}

	a.closeDB()
	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeDB() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
