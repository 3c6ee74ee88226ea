// Package all provides the all mode runner: an admin server plus an
// instance that monitors the admin server itself.
package all

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/go-service-admin/internal/client/management"
	"github.com/sirosfoundation/go-service-admin/internal/client/registration"
	"github.com/sirosfoundation/go-service-admin/internal/modes"
	modeinstance "github.com/sirosfoundation/go-service-admin/internal/modes/instance"
	modeserver "github.com/sirosfoundation/go-service-admin/internal/modes/server"
	httpserver "github.com/sirosfoundation/go-service-admin/internal/server"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

func init() {
	modes.Register(modes.ModeAll, func(cfg interface{}) (modes.Runner, error) {
		c, ok := cfg.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for all mode")
		}
		return New(c)
	})
}

// Config holds configuration for the all mode
type Config struct {
	Config  *config.Config
	Logger  *zap.Logger
	Version string
	// Hosts resolves the advertised host of the instance; nil uses service_host_type
	Hosts registration.HostResolver
}

// Runner implements the all mode
type Runner struct {
	cfg          *Config
	serverRunner *modeserver.Runner

	mu             sync.Mutex
	instanceRunner *modeinstance.Runner
}

// New creates a new all-mode runner
func New(cfg *Config) (*Runner, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("all mode requires a configuration")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	serverRunner, err := modeserver.New(&modeserver.Config{
		Config: cfg.Config,
		Logger: cfg.Logger.Named("server"),
		Roles:  []string{string(modes.ModeServer), string(modes.ModeInstance)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server runner: %w", err)
	}

	return &Runner{cfg: cfg, serverRunner: serverRunner}, nil
}

// Name returns the mode name
func (r *Runner) Name() modes.Mode {
	return modes.ModeAll
}

// Run starts the admin server, then the instance once the admin server is
// listening. Either failing cancels the other.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.cfg.Logger
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting admin server")
		if err := r.serverRunner.Run(gctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	select {
	case <-r.serverRunner.Started():
	case <-gctx.Done():
		return g.Wait()
	}

	instanceRunner, err := modeinstance.New(&modeinstance.Config{
		Config:  r.instanceConfig(),
		Logger:  logger.Named("instance"),
		Version: r.cfg.Version,
		Hosts:   r.cfg.Hosts,
		Indicators: map[string]management.Indicator{
			"eventStore": httpserver.StoreHealthIndicator(r.serverRunner.Services()),
		},
	})
	if err != nil {
		return errors.Join(err, g.Wait())
	}
	r.mu.Lock()
	r.instanceRunner = instanceRunner
	r.mu.Unlock()

	g.Go(func() error {
		logger.Info("Starting instance")
		if err := instanceRunner.Run(gctx); err != nil {
			return fmt.Errorf("instance error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// instanceConfig registers the instance with the local admin server when
// no admin URLs are configured
func (r *Runner) instanceConfig() *config.Config {
	cfg := *r.cfg.Config
	if len(cfg.Client.URLs) == 0 {
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		base := "http://" + net.JoinHostPort(host, strconv.Itoa(r.serverRunner.Port()))
		if cfg.Server.ContextPath != "" && cfg.Server.ContextPath != "/" {
			base += "/" + strings.Trim(cfg.Server.ContextPath, "/")
		}
		cfg.Client.URLs = []string{base}
	}
	if cfg.Client.Secret == "" {
		cfg.Client.Secret = cfg.RegistrationAuth.Secret
	}
	return &cfg
}

// Started is closed once the admin server is listening
func (r *Runner) Started() <-chan struct{} {
	return r.serverRunner.Started()
}

// ServerRunner returns the admin server runner
func (r *Runner) ServerRunner() *modeserver.Runner {
	return r.serverRunner
}

// InstanceRunner returns the instance runner, nil until the admin server started
func (r *Runner) InstanceRunner() *modeinstance.Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instanceRunner
}

// Shutdown stops the instance first so it can deregister, then the admin server
func (r *Runner) Shutdown(ctx context.Context) error {
	logger := r.cfg.Logger
	var errs []error

	if instanceRunner := r.InstanceRunner(); instanceRunner != nil {
		logger.Info("Shutting down instance")
		if err := instanceRunner.Shutdown(ctx); err != nil {
			logger.Error("Instance shutdown error", zap.Error(err))
			errs = append(errs, err)
		}
	}

	logger.Info("Shutting down admin server")
	if err := r.serverRunner.Shutdown(ctx); err != nil {
		logger.Error("Admin server shutdown error", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
