// Package server provides the server mode runner: the admin server with its
// event store, status polling, notifications and HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/modes"
	httpserver "github.com/sirosfoundation/go-service-admin/internal/server"
	"github.com/sirosfoundation/go-service-admin/internal/service"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

func init() {
	modes.Register(modes.ModeServer, func(cfg interface{}) (modes.Runner, error) {
		c, ok := cfg.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for server mode")
		}
		return New(c)
	})
}

// Config holds configuration for the server mode
type Config struct {
	Config *config.Config
	Logger *zap.Logger
	// Roles reported by the status endpoint; defaults to the server mode
	Roles []string
}

// Runner implements the server mode
type Runner struct {
	cfg     *Config
	started chan struct{}

	mu       sync.Mutex
	provider *httpserver.AdminProvider
	manager  *httpserver.Manager
}

// New creates a new server runner
func New(cfg *Config) (*Runner, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("server mode requires a configuration")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = []string{string(modes.ModeServer)}
	}
	return &Runner{cfg: cfg, started: make(chan struct{})}, nil
}

// Name returns the mode name
func (r *Runner) Name() modes.Mode {
	return modes.ModeServer
}

// Run starts the admin server and blocks until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg.Config
	logger := r.cfg.Logger

	provider, err := httpserver.NewAdminProvider(cfg, logger, r.cfg.Roles)
	if err != nil {
		return err
	}

	manager := httpserver.NewManager(&httpserver.ServerConfig{
		Address:      cfg.Server.Host,
		Port:         cfg.Server.Port,
		ContextPath:  cfg.Server.ContextPath,
		CORS:         cfg.CORS,
		LoggingLevel: cfg.Logging.Level,
	}, logger)
	manager.AddProvider(provider)

	if err := manager.Start(ctx); err != nil {
		_ = provider.Close()
		return fmt.Errorf("failed to start admin server: %w", err)
	}
	provider.Start()

	r.mu.Lock()
	r.provider = provider
	r.manager = manager
	r.mu.Unlock()
	close(r.started)

	logger.Info("Admin server started",
		zap.Int("port", manager.Port(httpserver.NamespaceServer)),
		zap.String("storage", cfg.Storage.Type))

	<-ctx.Done()
	return nil
}

// Started is closed once the admin server is listening
func (r *Runner) Started() <-chan struct{} {
	return r.started
}

// Port returns the bound port of the admin API, 0 before start
func (r *Runner) Port() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manager == nil {
		return 0
	}
	return r.manager.Port(httpserver.NamespaceServer)
}

// AdminToken returns the bearer token of the admin-only routes
func (r *Runner) AdminToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.provider == nil {
		return ""
	}
	return r.provider.AdminToken()
}

// Services returns the running services, nil before start
func (r *Runner) Services() *service.Services {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.provider == nil {
		return nil
	}
	return r.provider.Services()
}

// Shutdown stops the listener, the workers and the event store
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	manager, provider := r.manager, r.provider
	r.mu.Unlock()

	var errs []error
	if manager != nil {
		if err := manager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if provider != nil {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event store: %w", err))
		}
	}
	return errors.Join(errs...)
}
