// Package app wires all podscript subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and follows config file changes until its
// context ends, and Shutdown tears everything down in order.
//
// For testing, inject dependencies via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/podscript/internal/api"
	"github.com/MrWong99/podscript/internal/config"
	"github.com/MrWong99/podscript/internal/health"
	"github.com/MrWong99/podscript/internal/mcp"
	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/internal/session"
	"github.com/MrWong99/podscript/internal/store"
)

// shutdownTimeout bounds the graceful HTTP shutdown once Run's context ends.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes of the podscript server.
type App struct {
	cfg     *config.Config
	version string
	log     *slog.Logger
	level   *slog.LevelVar

	// configPath enables hot reload when set.
	configPath    string
	watchInterval time.Duration

	// Subsystems: initialised in New, torn down in Shutdown.
	provider *observe.Provider
	metrics  *observe.Metrics
	store    store.Store
	sessions *session.Manager
	handler  http.Handler

	addr atomic.Pointer[net.Addr]

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a snapshot store instead of opening the configured one.
// The caller keeps ownership of its resources.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects metrics instead of initialising the OpenTelemetry
// providers. No metrics endpoint is served in that case.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the application logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets config reloads change the log level of handlers built
// on lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigPath makes Run watch the config file at path and apply
// hot-reloadable changes.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithWatchInterval sets how often the config file is polled.
func WithWatchInterval(d time.Duration) Option {
	return func(a *App) { a.watchInterval = d }
}

// WithVersion sets the version reported in telemetry and to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: telemetry, the
// snapshot store, the session manager (restoring stored snapshots and opening
// seed files) and the HTTP routes.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, a.fail(ctx, fmt.Errorf("app: init telemetry: %w", err))
	}
	if err := a.initStore(ctx); err != nil {
		return nil, a.fail(ctx, fmt.Errorf("app: init store: %w", err))
	}
	if err := a.initSessions(ctx); err != nil {
		return nil, a.fail(ctx, fmt.Errorf("app: init sessions: %w", err))
	}
	a.handler = a.routes()
	return a, nil
}

// fail releases whatever New had set up before err.
func (a *App) fail(ctx context.Context, err error) error {
	_ = a.Shutdown(ctx)
	return err
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Observe.ServiceName,
		ServiceVersion: a.version,
	})
	if err != nil {
		return err
	}
	m, err := observe.NewMetrics(p.MeterProvider)
	if err != nil {
		_ = p.Shutdown(ctx)
		return err
	}
	a.provider, a.metrics = p, m
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	st, closeFn, err := store.Open(ctx, a.cfg.Store, a.metrics, a.log)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error {
		closeFn()
		return nil
	})
	return nil
}

func (a *App) initSessions(ctx context.Context) error {
	a.sessions = session.NewManager(session.Config{
		Store:   a.store,
		Metrics: a.metrics,
		Script:  a.cfg.Script,
		Logger:  a.log,
	})
	// Sessions close first so that pending autosaves reach the store.
	a.closers = append([]func(context.Context) error{a.sessions.CloseAll}, a.closers...)

	n, err := a.sessions.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshots: %w", err)
	}
	if n > 0 {
		a.log.Info("restored stored scripts", "sessions", n)
	}
	if len(a.cfg.Script.SeedFiles) > 0 {
		seeded, err := a.sessions.Seed(ctx, a.cfg.Script.SeedFiles)
		if err != nil {
			return fmt.Errorf("seed scripts: %w", err)
		}
		a.log.Info("opened seed scripts", "sessions", len(seeded))
	}
	return nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	api.New(a.sessions, api.WithMetrics(a.metrics), api.WithLogger(a.log)).Register(mux)
	health.New(health.StoreChecker(a.store)).Register(mux)

	if a.cfg.MCP.Enabled {
		srv := mcp.New(a.sessions,
			mcp.WithMetrics(a.metrics),
			mcp.WithLogger(a.log),
			mcp.WithVersion(a.version),
		)
		mux.Handle(a.cfg.MCP.Path, srv.Handler())
		a.log.Info("mcp endpoint enabled", "path", a.cfg.MCP.Path)
	}
	if a.provider != nil {
		mux.Handle("GET "+a.cfg.Observe.MetricsPath, a.provider.MetricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Addr returns the address Run is listening on, or nil before it listens.
func (a *App) Addr() net.Addr {
	if p := a.addr.Load(); p != nil {
		return *p
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and, with [WithConfigPath],
// applies config file changes until ctx is cancelled. It returns nil after a
// clean stop.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	addr := ln.Addr()
	a.addr.Store(&addr)

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server listening", "addr", addr.String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	if a.configPath != "" {
		var opts []config.WatcherOption
		opts = append(opts, config.WithWatcherLogger(a.log))
		if a.watchInterval > 0 {
			opts = append(opts, config.WithInterval(a.watchInterval))
		}
		w, err := config.NewWatcher(a.configPath, opts...)
		if err != nil {
			a.log.Warn("config hot reload disabled", "path", a.configPath, "err", err)
		} else {
			// Edits made between New and the watcher's first load.
			if cur := w.Current(); config.Diff(a.cfg, cur).Changed() {
				a.applyConfig(a.cfg, cur)
			}
			g.Go(func() error {
				_ = w.Run(gctx, a.applyConfig)
				return nil
			})
		}
	}

	return g.Wait()
}

// applyConfig applies the hot-reloadable part of a config change.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ScriptDefaultsChanged || d.AutosaveChanged {
		a.sessions.ApplyScriptConfig(new.Script)
		a.log.Info("script settings changed",
			"words_per_minute", new.Script.DefaultWordsPerMinute,
			"sound_duration", new.Script.DefaultSoundDuration,
			"autosave", new.Script.Autosave,
		)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
	}
}

// SlogLevel converts a configured log level to its slog value.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every session, flushing pending autosaves, then releases
// the store and flushes telemetry. If ctx expires first, the remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		closers := a.closers
		if a.provider != nil {
			closers = append(closers, a.provider.Shutdown)
		}
		a.log.Info("shutting down", "closers", len(closers))

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
