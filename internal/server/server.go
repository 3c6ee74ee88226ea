// Package server provides HTTP server management for the admin server and
// for monitored instances. It separates the concept of "routes" from
// "servers": modes provide routes, the server manager binds them to
// listeners.
//
// Architecture:
//   - RouteProvider: modes implement this to contribute routes
//   - Manager: binds RouteProviders to a server listener and, optionally,
//     a separate management listener
//   - Management providers share the server listener unless a management
//     port is configured
//   - Readiness callbacks report the bound port of each namespace
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
	"github.com/sirosfoundation/go-service-admin/pkg/middleware"
)

// Namespace identifies the listener a provider's routes are served on
type Namespace string

const (
	// NamespaceServer is the primary listener
	NamespaceServer Namespace = "server"
	// NamespaceManagement serves operational endpoints, on its own port if configured
	NamespaceManagement Namespace = "management"
)

// RouteProvider allows modes to register their routes on a shared router.
// This separates route definition from server lifecycle management.
type RouteProvider interface {
	// Namespace returns which listener this provider is served on.
	Namespace() Namespace

	// RegisterRoutes adds this mode's routes below the group.
	// The group may be shared with other providers.
	RegisterRoutes(group *gin.RouterGroup)

	// Name returns the provider name for logging
	Name() string
}

// ReadyFunc is called once a namespace's listener is bound
type ReadyFunc func(namespace Namespace, port int)

// ServerConfig holds server listener configuration
type ServerConfig struct {
	// Address and Port of the server listener; port 0 picks a free port
	Address string
	Port    int
	// ContextPath is the mount path of server providers
	ContextPath string

	// ManagementPort of a separate management listener; 0 shares the server listener
	ManagementAddress string
	ManagementPort    int
	// ManagementContextPath is the mount path of management providers
	// on whichever listener serves them
	ManagementContextPath string

	// Common settings
	CORS         config.CORSConfig
	LoggingLevel string
}

// SeparateManagement reports whether management routes get their own listener
func (c *ServerConfig) SeparateManagement() bool {
	return c.ManagementPort > 0 && c.ManagementPort != c.Port
}

// Manager manages HTTP servers and combines multiple RouteProviders
type Manager struct {
	cfg    *ServerConfig
	logger *zap.Logger

	providers []RouteProvider
	onReady   []ReadyFunc

	mu        sync.Mutex
	servers   map[Namespace]*http.Server
	listeners map[Namespace]net.Listener
	routers   map[Namespace]*gin.Engine
	ports     map[Namespace]int
	serving   sync.WaitGroup
}

// NewManager creates a new server manager
func NewManager(cfg *ServerConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("server"),
		providers: make([]RouteProvider, 0),
		servers:   make(map[Namespace]*http.Server),
		listeners: make(map[Namespace]net.Listener),
		routers:   make(map[Namespace]*gin.Engine),
		ports:     make(map[Namespace]int),
	}
}

// AddProvider adds a RouteProvider to the manager.
// Call this before Start() to register all modes.
func (m *Manager) AddProvider(p RouteProvider) {
	m.providers = append(m.providers, p)
	m.logger.Debug("Added route provider",
		zap.String("name", p.Name()),
		zap.String("namespace", string(p.Namespace())))
}

// OnReady registers a callback invoked for each namespace once it is bound.
// With a shared listener the management namespace reports the server port.
func (m *Manager) OnReady(fn ReadyFunc) {
	m.onReady = append(m.onReady, fn)
}

// Start builds routers, binds listeners and starts serving
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.LoggingLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	serverRouter := m.buildRouter()
	managementRouter := serverRouter
	if m.cfg.SeparateManagement() {
		managementRouter = m.buildRouter()
	}

	serverGroup := serverRouter.Group(mountPath(m.cfg.ContextPath))
	managementGroup := managementRouter.Group(mountPath(m.cfg.ManagementContextPath))

	hasManagement := false
	for _, p := range m.providers {
		switch p.Namespace() {
		case NamespaceManagement:
			m.logger.Info("Registering management routes", zap.String("provider", p.Name()))
			p.RegisterRoutes(managementGroup)
			hasManagement = true
		default:
			m.logger.Info("Registering HTTP routes", zap.String("provider", p.Name()))
			p.RegisterRoutes(serverGroup)
		}
	}

	serverPort, err := m.serve(ctx, NamespaceServer, serverRouter, m.cfg.Address, m.cfg.Port)
	if err != nil {
		return err
	}

	managementPort := serverPort
	if m.cfg.SeparateManagement() && hasManagement {
		address := m.cfg.ManagementAddress
		if address == "" {
			address = m.cfg.Address
		}
		managementPort, err = m.serve(ctx, NamespaceManagement, managementRouter, address, m.cfg.ManagementPort)
		if err != nil {
			_ = m.Shutdown(ctx)
			return err
		}
	} else {
		m.mu.Lock()
		m.routers[NamespaceManagement] = serverRouter
		m.ports[NamespaceManagement] = serverPort
		m.mu.Unlock()
	}

	m.ready(NamespaceServer, serverPort)
	m.ready(NamespaceManagement, managementPort)
	return nil
}

// serve binds a listener and serves router on it, returning the bound port
func (m *Manager) serve(ctx context.Context, ns Namespace, router *gin.Engine, address string, port int) (int, error) {
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s for %s: %w", addr, ns, err)
	}
	bound := ln.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no write timeout: event streams are long-lived
		IdleTimeout: 60 * time.Second,
	}

	m.mu.Lock()
	m.servers[ns] = srv
	m.listeners[ns] = ln
	m.routers[ns] = router
	m.ports[ns] = bound
	m.mu.Unlock()

	m.serving.Add(1)
	go func() {
		defer m.serving.Done()
		m.logger.Info("HTTP server listening",
			zap.String("namespace", string(ns)),
			zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("HTTP server error", zap.String("namespace", string(ns)), zap.Error(err))
		}
	}()
	return bound, nil
}

func (m *Manager) ready(ns Namespace, port int) {
	for _, fn := range m.onReady {
		fn(ns, port)
	}
}

// Shutdown gracefully shuts down all servers. The listeners are closed and
// the ports released when it returns.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	servers := make(map[Namespace]*http.Server, len(m.servers))
	for ns, srv := range m.servers {
		servers[ns] = srv
	}
	listeners := make(map[Namespace]net.Listener, len(m.listeners))
	for ns, ln := range m.listeners {
		listeners[ns] = ln
	}
	m.mu.Unlock()

	var errs []error
	for ns, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", ns, err))
		}
	}
	// Serve may not have picked up its listener yet, in which case
	// srv.Shutdown has nothing to close
	for ns, ln := range listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s listener close: %w", ns, err))
		}
	}
	m.serving.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// buildRouter creates a new router with common middleware
func (m *Manager) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(m.logger))
	if len(m.cfg.CORS.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  m.cfg.CORS.AllowOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders: []string{"Location"},
			MaxAge:        12 * time.Hour,
		}))
	}
	return router
}

// Port returns the bound port of a namespace, 0 before Start
func (m *Manager) Port(ns Namespace) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[ns]
}

// Router returns the router serving a namespace, nil before Start.
// Useful for tests and for modes that add routes after construction.
func (m *Manager) Router(ns Namespace) *gin.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routers[ns]
}

func mountPath(p string) string {
	return "/" + strings.Trim(p, "/")
}
