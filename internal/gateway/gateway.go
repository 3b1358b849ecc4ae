// ABOUTME: Composition root that wires the store, caches, dispatcher and services
// ABOUTME: Owns the process lifecycle from startup through graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/coven-keep/internal/admin"
	"github.com/2389/coven-keep/internal/alias"
	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/behavior"
	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/config"
	"github.com/2389/coven-keep/internal/credential"
	"github.com/2389/coven-keep/internal/reload"
	"github.com/2389/coven-keep/internal/resolve"
	"github.com/2389/coven-keep/internal/service"
	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

// Service names registered with the supervisor.
const (
	ServiceTelnet          = "core-telnet"
	ServiceWebSocket       = "websocket"
	ServiceHealth          = "grpc-health"
	ServiceIdleReaper      = "idle-reaper"
	ServiceBehaviorWatcher = "behavior-watcher"
)

const (
	shutdownNotice = "The server is shutting down."
	idleNotice     = "You have been idle too long. Goodbye."
)

// Gateway owns every long-lived component of the server.
type Gateway struct {
	config     *config.Config
	store      store.Store
	sessions   *session.Directory
	supervisor *service.Supervisor
	aliases    *alias.Table
	behaviors  *behavior.Cache
	registry   *command.Registry
	dispatcher *command.Dispatcher
	reloader   *reload.Orchestrator
	telnet     *TelnetService
	websocket  *WebSocketService
	health     *HealthService
	tokens     *auth.Tokens // nil when token login is disabled
	logger     *slog.Logger

	// tsnetServer is set when listeners come from the tailnet
	tsnetServer *tsnet.Server
	listen      listenFunc

	shutdownOnce sync.Once
	shutdownCh   chan string
}

// initStore opens the configured database. KEEP_DB_PATH overrides the file.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("KEEP_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway backed by the configured SQLite database.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore wires a Gateway around an existing store. The Gateway
// takes ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{
		config:     cfg,
		store:      s,
		sessions:   session.NewDirectory(logger),
		supervisor: service.NewSupervisor(cfg.Services.ProtectedPrefixes, logger),
		aliases:    alias.NewTable(s, alias.Builtin, logger),
		behaviors:  behavior.NewCache(cfg.Behaviors.Path, logger),
		logger:     logger.With("component", "gateway"),
		shutdownCh: make(chan string, 1),
	}
	gw.listen = gw.listenTCP
	if cfg.Auth.TokenSecret != "" {
		gw.tokens = auth.NewTokens([]byte(cfg.Auth.TokenSecret))
	}

	ctx := context.Background()
	if err := gw.aliases.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("loading aliases: %w", err)
	}
	if err := gw.behaviors.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("loading behaviors: %w", err)
	}

	gw.reloader = reload.NewOrchestrator(map[reload.Scope]reload.Rebuilder{
		reload.Aliases:  gw.aliases,
		reload.Scripts:  gw.behaviors,
		reload.Commands: reload.RebuildFunc(gw.rebuildCommands),
	}, logger)

	resolver := resolve.New(s, gw.sessions)
	handlers := admin.New(admin.Deps{
		Store:       s,
		Sessions:    gw.sessions,
		Resolver:    resolver,
		Credentials: credential.NewManager(resolver, s, gw.sessions, logger),
		Services:    gw.supervisor,
		Reloader:    gw.reloader,
		Messages:    gw.behaviors,
		Shutdown:    gw,
		Logger:      logger,
	})

	registry, err := command.NewRegistry(handlers.Commands, logger)
	if err != nil {
		return nil, fmt.Errorf("building command table: %w", err)
	}
	gw.registry = registry
	gw.dispatcher = command.NewDispatcher(registry, gw.aliases, logger)

	if err := gw.registerServices(); err != nil {
		return nil, err
	}
	return gw, nil
}

func (g *Gateway) rebuildCommands(ctx context.Context) error {
	return g.registry.Rebuild(ctx)
}

// registerServices registers every configured service. Optional services
// are skipped when their address or feature is not configured.
func (g *Gateway) registerServices() error {
	cfg := g.config
	logger := g.logger

	if cfg.Server.TelnetAddr != "" || cfg.Tailscale.Enabled {
		g.telnet = NewTelnetService(g, cfg.Server.TelnetAddr)
		if err := g.supervisor.Register(g.telnet, service.WithProtected()); err != nil {
			return err
		}
	}
	if cfg.Server.WebSocketAddr != "" {
		g.websocket = NewWebSocketService(g, cfg.Server.WebSocketAddr)
		if err := g.supervisor.Register(g.websocket); err != nil {
			return err
		}
	}
	if cfg.Server.HealthAddr != "" {
		g.health = NewHealthService(g, cfg.Server.HealthAddr)
		if err := g.supervisor.Register(g.health); err != nil {
			return err
		}
	}

	reaper := service.NewLoop(ServiceIdleReaper, g.reapIdle, logger)
	if err := g.supervisor.Register(reaper); err != nil {
		return err
	}

	if cfg.Behaviors.Watch && cfg.Behaviors.Path != "" {
		watcher := reload.NewWatcher(cfg.Behaviors.Path, 250*time.Millisecond, g.reloadBehaviors, logger)
		if err := g.supervisor.Register(service.NewLoop(ServiceBehaviorWatcher, watcher.Run, logger)); err != nil {
			return err
		}
	}
	return nil
}

// reapIdle disconnects idle sessions on every tick until ctx ends.
func (g *Gateway) reapIdle(ctx context.Context) error {
	interval := g.config.Sessions.ReapInterval
	if interval <= 0 {
		interval = config.DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n := g.sessions.ReapIdle(g.config.Sessions.IdleTimeout, now, idleNotice); n > 0 {
				g.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

func (g *Gateway) reloadBehaviors(ctx context.Context) {
	lines, err := g.reloader.Reload(ctx, reload.ScopeSet{reload.Scripts: true})
	if err != nil {
		g.logger.Warn("behavior file changed but reload failed", "error", err)
		return
	}
	g.logger.Info("behavior file changed", "result", lines)
}

// RequestShutdown begins a graceful stop. Only the first request counts.
func (g *Gateway) RequestShutdown(reason string) {
	g.shutdownOnce.Do(func() {
		g.logger.Warn("shutdown requested", "reason", reason)
		g.shutdownCh <- reason
	})
}

// Run starts every service that is not disabled and blocks until ctx is
// cancelled, a shutdown is requested, or startup fails.
func (g *Gateway) Run(ctx context.Context) error {
	if g.config.Tailscale.Enabled {
		if err := g.setupTailscale(ctx); err != nil {
			_ = g.gracefulShutdown()
			return err
		}
	}

	skip := func(name string) bool {
		if g.config.IsDisabled(name) {
			g.logger.Info("service disabled by config", "service", name)
			return true
		}
		return false
	}
	if err := g.supervisor.StartAll(ctx, skip); err != nil {
		_ = g.gracefulShutdown()
		return fmt.Errorf("starting services: %w", err)
	}
	g.logger.Info("keep is running", "services", len(g.supervisor.List()))

	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case reason := <-g.shutdownCh:
		g.logger.Info("shutdown command received, initiating shutdown", "reason", reason)
	}
	return g.gracefulShutdown()
}

// gracefulShutdown runs Shutdown with a fresh deadline because the run
// context is usually already cancelled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownDeadline)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops every service, disconnects every session and closes the
// store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down keep")

	var errs []error
	if err := g.supervisor.StopAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping services: %w", err))
	}
	if n := g.sessions.RemoveAll(shutdownNotice); n > 0 {
		g.logger.Info("disconnected sessions", "count", n)
	}
	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

// Dispatcher returns the command dispatcher.
func (g *Gateway) Dispatcher() *command.Dispatcher { return g.dispatcher }

// Sessions returns the session directory.
func (g *Gateway) Sessions() *session.Directory { return g.sessions }

// Supervisor returns the service supervisor.
func (g *Gateway) Supervisor() *service.Supervisor { return g.supervisor }

// TelnetAddr returns the bound telnet address, or "" when not listening.
func (g *Gateway) TelnetAddr() string {
	if g.telnet == nil {
		return ""
	}
	if addr := g.telnet.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
