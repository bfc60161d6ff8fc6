// Package app wires all Aula subsystems into a running relay.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and runs the background loops, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithSessionStore,
// WithClock, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aula/internal/classroom"
	"github.com/MrWong99/aula/internal/config"
	"github.com/MrWong99/aula/internal/health"
	"github.com/MrWong99/aula/internal/hub"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/pipeline"
	"github.com/MrWong99/aula/internal/server"
	"github.com/MrWong99/aula/internal/session"
	"github.com/MrWong99/aula/internal/transport"
	"github.com/MrWong99/aula/pkg/store"
	"github.com/MrWong99/aula/pkg/store/memstore"
	"github.com/MrWong99/aula/pkg/store/postgres"
)

// readHeaderTimeout bounds request header reads on the public listener.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes of the relay.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	configPath     string
	now            func() time.Time

	// Subsystems, initialised in New and torn down in Shutdown.
	store      store.SessionStore
	classrooms *classroom.Manager
	sessions   *session.Lifecycle
	hub        *hub.Manager
	chains     *chains
	pipeline   *pipeline.Pipeline
	server     *server.Server
	watcher    *config.Watcher
	handler    http.Handler
	httpServer *http.Server

	addrMu sync.Mutex
	addr   net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s store.SessionStore) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the instruments every subsystem records to.
// Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel hands the app the level variable of the default logger so
// config reloads can change verbosity live.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigPath enables polling of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithClock sets the clock of every time-dependent subsystem.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go (built via the config registry) and may be nil, in which case
// every capability runs on its offline tier only.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.now == nil {
		a.now = time.Now
	}

	// ── 1. Session store ─────────────────────────────────────────────────
	a.initStore(ctx)

	// ── 2. Classrooms + session lifecycle ────────────────────────────────
	a.classrooms = classroom.New(classroom.WithClock(a.now))
	sessions, err := session.New(session.Config{
		Classrooms:          a.classrooms,
		Store:               a.store,
		CodeTTL:             cfg.Classroom.CodeTTL,
		GracePeriod:         cfg.Session.GracePeriod,
		InactivityThreshold: cfg.Session.InactivityThreshold,
		MinRealDuration:     cfg.Session.MinRealDuration,
		Metrics:             a.metrics,
		Now:                 a.now,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init sessions: %w", err)
	}
	a.sessions = sessions

	// ── 3. Provider chains ───────────────────────────────────────────────
	a.chains, err = buildChains(cfg.Resilience, providers, a.metrics, a.now)
	if err != nil {
		return nil, fmt.Errorf("app: init provider chains: %w", err)
	}

	// ── 4. Connections + pipeline + server ───────────────────────────────
	a.hub = hub.New(hub.WithMetrics(a.metrics), hub.WithClock(a.now))
	a.pipeline, err = pipeline.New(pipeline.Config{
		STT:        a.chains.stt,
		Translator: a.chains.translation,
		TTS:        a.chains.tts,
		Hub:        a.hub,
		Recorder:   a.sessions,
		Metrics:    a.metrics,
		Now:        a.now,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.server, err = server.New(server.Config{
		Hub:        a.hub,
		Classrooms: a.classrooms,
		Sessions:   a.sessions,
		Pipeline:   a.pipeline,
		Transport: transport.Options{
			QueueSize:       cfg.Server.SendQueueSize,
			WriteTimeout:    cfg.Server.WriteTimeout,
			MaxMessageBytes: cfg.Server.MaxMessageBytes,
			OriginPatterns:  cfg.Server.AllowedOrigins,
		},
		DefaultLanguage: cfg.Server.DefaultLanguage,
		Metrics:         a.metrics,
		Now:             a.now,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	// ── 5. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		a.watcher, err = config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
	}

	// ── 6. HTTP routes ───────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())
	a.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects PostgreSQL when a DSN is configured. An unreachable
// database is not fatal: sessions are then kept in memory.
func (a *App) initStore(ctx context.Context) {
	if a.store != nil {
		return
	}
	if dsn := a.cfg.Store.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err == nil {
			a.store = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			slog.Info("session store connected", "backend", "postgres")
			return
		}
		slog.Error("session store unavailable, keeping sessions in memory", "err", err)
	}
	a.store = memstore.New()
}

// routes builds the HTTP mux.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	checkers := []health.Checker{
		health.Store(a.store),
		{
			Name: "sessions",
			Check: func(context.Context) error {
				if a.sessions.StoreDegraded() {
					return fmt.Errorf("%w: session records are kept in memory", health.ErrDegraded)
				}
				return nil
			},
		},
	}
	checkers = append(checkers, health.Chains(a.chains.stt, a.chains.translation, a.chains.tts)...)
	health.New(checkers...).Register(mux)

	a.server.Register(mux)
	mux.HandleFunc("GET /api/providers", a.handleProviders)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return mux
}

// Handler returns the app's HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the address Run is listening on, or nil before it listens.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address, serves HTTP and runs the heartbeat,
// code sweep, session cleanup and config watch loops. It blocks until ctx is
// cancelled and then returns ctx.Err(); a listener failure is returned
// immediately. Connections stay open until [App.Shutdown].
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		a.hub.RunHeartbeat(loopCtx, a.cfg.Heartbeat.Interval, a.cfg.Heartbeat.PingTimeout)
		return nil
	})
	g.Go(func() error {
		a.classrooms.Run(loopCtx, a.cfg.Classroom.SweepInterval)
		return nil
	})
	g.Go(func() error {
		a.sessions.Run(loopCtx, a.cfg.Session.CleanupInterval)
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error {
			a.watcher.Run(loopCtx)
			return nil
		})
	}

	slog.Info("relay listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		cancel()
		_ = g.Wait()
		return ctx.Err()
	case err := <-serveErr:
		cancel()
		_ = g.Wait()
		if err == nil {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// applyConfig is the config watcher callback.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed, restart to apply", "sections", d.RestartRequired)
	}
}

// ─── HTTP API ────────────────────────────────────────────────────────────────

// handleProviders reports every provider tier and its breaker state.
func (a *App) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.chains.states())
}

type stats struct {
	Connections    int  `json:"connections"`
	ActiveSessions int  `json:"activeSessions"`
	ActiveCodes    int  `json:"activeCodes"`
	StoreDegraded  bool `json:"storeDegraded"`
}

// handleStats reports live relay counters.
func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, stats{
		Connections:    a.hub.Count(),
		ActiveSessions: a.sessions.ActiveCount(),
		ActiveCodes:    a.classrooms.Stats(),
		StoreDegraded:  a.sessions.StoreDegraded(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every WebSocket connection with a going-away status, stops
// the HTTP server and then runs the closers. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		n := a.server.CloseAll()
		slog.Info("shutting down", "connections", n, "closers", len(a.closers))

		if err := a.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
