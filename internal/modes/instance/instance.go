// Package instance provides the instance mode runner: a monitored instance
// serving management endpoints and registering itself with admin servers.
package instance

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/client/management"
	"github.com/sirosfoundation/go-service-admin/internal/client/registration"
	"github.com/sirosfoundation/go-service-admin/internal/modes"
	httpserver "github.com/sirosfoundation/go-service-admin/internal/server"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

func init() {
	modes.Register(modes.ModeInstance, func(cfg interface{}) (modes.Runner, error) {
		c, ok := cfg.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for instance mode")
		}
		return New(c)
	})
}

// Config holds configuration for the instance mode
type Config struct {
	Config  *config.Config
	Logger  *zap.Logger
	Version string
	// Hosts resolves the advertised host; nil derives it from service_host_type
	Hosts registration.HostResolver
	// Providers contribute the application's own routes
	Providers []httpserver.RouteProvider
	// Indicators are extra health components
	Indicators map[string]management.Indicator
}

// Runner implements the instance mode
type Runner struct {
	cfg     *Config
	hosts   registration.HostResolver
	started chan struct{}

	mu          sync.Mutex
	manager     *httpserver.Manager
	worker      *registration.RegistrationWorker
	registrator *registration.Registrator
}

// New creates a new instance runner
func New(cfg *Config) (*Runner, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("instance mode requires a configuration")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	hosts := cfg.Hosts
	if hosts == nil {
		hostType, err := registration.ParseHostType(cfg.Config.Instance.ServiceHostType)
		if err != nil {
			return nil, err
		}
		hosts = registration.NewLocalHostResolver(hostType)
	}
	return &Runner{cfg: cfg, hosts: hosts, started: make(chan struct{})}, nil
}

// Name returns the mode name
func (r *Runner) Name() modes.Mode {
	return modes.ModeInstance
}

// Run starts the instance listeners and the registration worker and
// blocks until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg.Config
	logger := r.cfg.Logger

	mgmt := httpserver.NewManagementProvider(cfg, r.cfg.Version)
	for name, indicator := range r.cfg.Indicators {
		mgmt.AddHealthIndicator(name, indicator)
	}

	factory := registration.NewApplicationFactory(cfg.Instance, cfg.Management, r.hosts, mgmt.Endpoints())
	builder := factory.NewDescriptorBuilder()

	manager := httpserver.NewManager(listenerConfig(cfg), logger)
	for _, p := range r.cfg.Providers {
		manager.AddProvider(p)
	}
	manager.AddProvider(mgmt)
	manager.OnReady(func(ns httpserver.Namespace, port int) {
		if err := builder.Update(string(ns), port); err != nil {
			logger.Warn("Ignoring listener readiness", zap.String("namespace", string(ns)), zap.Error(err))
		}
	})

	client := registration.NewClient(cfg.Client)
	registrator := registration.NewRegistrator(client, func() (registration.Application, error) {
		return factory.CreateApplication(builder)
	}, cfg.Client, logger)
	worker := registration.NewRegistrationWorker(cfg.Client, registrator, logger)

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start instance server: %w", err)
	}
	worker.Start()

	r.mu.Lock()
	r.manager = manager
	r.worker = worker
	r.registrator = registrator
	r.mu.Unlock()
	close(r.started)

	logger.Info("Instance started",
		zap.String("name", cfg.Instance.Name),
		zap.Int("port", manager.Port(httpserver.NamespaceServer)),
		zap.Int("management_port", manager.Port(httpserver.NamespaceManagement)))

	<-ctx.Done()
	return nil
}

// listenerConfig maps the instance configuration onto the listener layout.
// Shared management endpoints are mounted below the context path and the
// dispatcher prefix, a separate management server below its own context path.
func listenerConfig(cfg *config.Config) *httpserver.ServerConfig {
	sc := &httpserver.ServerConfig{
		Address:      cfg.Instance.Host,
		Port:         cfg.Instance.Port,
		ContextPath:  cfg.Instance.ContextPath,
		LoggingLevel: cfg.Logging.Level,
	}
	if cfg.Management.Port > 0 && cfg.Management.Port != cfg.Instance.Port {
		sc.ManagementAddress = cfg.Instance.Host
		sc.ManagementPort = cfg.Management.Port
		sc.ManagementContextPath = cfg.Management.ContextPath
	} else {
		sc.ManagementContextPath = path.Join("/", cfg.Instance.ContextPath, cfg.Instance.DispatcherPrefix, cfg.Management.ContextPath)
	}
	return sc
}

// Started is closed once the listeners are bound
func (r *Runner) Started() <-chan struct{} {
	return r.started
}

// Port returns the bound port of a listener namespace, 0 before start
func (r *Runner) Port(ns httpserver.Namespace) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manager == nil {
		return 0
	}
	return r.manager.Port(ns)
}

// RegisteredID returns the id assigned by the admin server, if any
func (r *Runner) RegisteredID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registrator == nil {
		return ""
	}
	return r.registrator.RegisteredID()
}

// Shutdown stops registering, deregisters when configured to and stops
// the listeners
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	manager, worker := r.manager, r.worker
	r.mu.Unlock()

	if worker != nil {
		worker.Stop()
	}
	if manager != nil {
		return manager.Shutdown(ctx)
	}
	return nil
}
