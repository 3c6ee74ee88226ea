package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/api"
	"github.com/sirosfoundation/go-service-admin/internal/backend"
	"github.com/sirosfoundation/go-service-admin/internal/client/management"
	"github.com/sirosfoundation/go-service-admin/internal/client/registration"
	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/service"
	"github.com/sirosfoundation/go-service-admin/internal/websocket"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
	"github.com/sirosfoundation/go-service-admin/pkg/middleware"
)

// =============================================================================
// Admin Provider - registration, instance and notification routes
// =============================================================================

// AdminProvider provides the admin server API
type AdminProvider struct {
	cfg         *config.Config
	logger      *zap.Logger
	services    *service.Services
	handlers    *api.Handlers
	admin       *api.AdminHandlers
	rateLimiter *middleware.RateLimiter
	events      *websocket.Manager
	adminToken  string
}

// NewAdminProvider initializes the event store and the services behind the admin API
func NewAdminProvider(cfg *config.Config, logger *zap.Logger, roles []string) (*AdminProvider, error) {
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	// Ping storage to verify connection
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to ping storage: %w", err)
	}

	logger.Info("Storage backend initialized", zap.String("type", cfg.Storage.Type))

	services, err := service.NewServices(store, cfg, metrics.New(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return NewAdminProviderWithServices(cfg, services, logger, roles)
}

// NewAdminProviderWithServices creates the admin provider on top of existing services
func NewAdminProviderWithServices(cfg *config.Config, services *service.Services, logger *zap.Logger, roles []string) (*AdminProvider, error) {
	token := cfg.Server.AdminToken
	if token == "" {
		var err error
		token, err = middleware.GenerateAdminToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin token: %w", err)
		}
		logger.Info("Generated admin API token (set ADMIN_SERVER_ADMIN_TOKEN to use a fixed token)",
			zap.String("token", token))
	}

	return &AdminProvider{
		cfg:         cfg,
		logger:      logger,
		services:    services,
		handlers:    api.NewHandlers(services, cfg, logger, roles),
		admin:       api.NewAdminHandlers(services, logger),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		events:      websocket.NewManager(services.Store, cfg.CORS.AllowOrigins, services.Sanitizer.SanitizeEvent, logger),
		adminToken:  token,
	}, nil
}

func (p *AdminProvider) Namespace() Namespace { return NamespaceServer }
func (p *AdminProvider) Name() string         { return "admin" }

func (p *AdminProvider) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/status", p.handlers.Status)
	group.GET("/metrics", gin.WrapH(p.services.Metrics.Handler()))

	instances := group.Group("/instances")
	{
		// Registration routes, authenticated by instance tokens and rate limited
		registrations := instances.Group("")
		registrations.Use(middleware.RegistrationAuthMiddleware(p.cfg.RegistrationAuth, p.logger))
		registrations.Use(p.rateLimiter.Middleware())
		{
			registrations.POST("", p.handlers.RegisterInstance)
			registrations.DELETE("/:id", p.handlers.DeregisterInstance)
		}

		instances.GET("", p.handlers.ListInstances)
		instances.GET("/events", p.handlers.InstanceEvents)
		instances.GET("/events/ws", gin.WrapF(p.events.HandleConnection))
		instances.GET("/:id", p.handlers.GetInstance)
	}

	applications := group.Group("/applications")
	{
		applications.GET("", p.admin.ListApplications)
		applications.GET("/:name", p.admin.GetApplication)
	}

	// Admin-only routes
	protected := group.Group("")
	protected.Use(middleware.AdminAuthMiddleware(p.adminToken, p.logger))
	{
		protected.DELETE("/applications/:name", p.admin.DeregisterApplication)

		if p.services.Notifier != nil {
			filters := protected.Group("/notifications/filters")
			{
				filters.GET("", p.admin.ListNotificationFilters)
				filters.POST("", p.admin.AddNotificationFilter)
				filters.DELETE("/:id", p.admin.RemoveNotificationFilter)
			}
		}
	}
}

// Start starts the status polling and notification workers
func (p *AdminProvider) Start() {
	p.services.Start()
}

// Close disconnects event subscribers, stops the workers and closes the event store
func (p *AdminProvider) Close() error {
	p.events.Close()
	p.services.Stop()
	return p.services.Store.Close()
}

// AdminToken returns the bearer token guarding admin-only routes
func (p *AdminProvider) AdminToken() string {
	return p.adminToken
}

// Services returns the services behind the API
func (p *AdminProvider) Services() *service.Services {
	return p.services
}

// =============================================================================
// Management Provider - operational endpoints of a monitored instance
// =============================================================================

// ManagementProvider serves the health and info endpoints of an instance
type ManagementProvider struct {
	endpoints *management.Endpoints
	health    *management.HealthEndpoint
}

// NewManagementProvider creates the management endpoints of the configured instance
func NewManagementProvider(cfg *config.Config, version string) *ManagementProvider {
	endpoints := management.NewEndpoints(cfg.Management.EffectiveBasePath())
	health := management.NewHealthEndpoint(0)

	endpoints.Register(registration.EndpointHealth, health.Handler())
	endpoints.Register("info", management.NewInfoEndpoint(cfg.Instance.Name, version, cfg.Instance.Metadata).Handler())

	return &ManagementProvider{
		endpoints: endpoints,
		health:    health,
	}
}

func (p *ManagementProvider) Namespace() Namespace { return NamespaceManagement }
func (p *ManagementProvider) Name() string         { return "management" }

func (p *ManagementProvider) RegisterRoutes(group *gin.RouterGroup) {
	p.endpoints.Mount(group)
}

// Endpoints returns the endpoint registry, used to resolve the health URL
func (p *ManagementProvider) Endpoints() *management.Endpoints {
	return p.endpoints
}

// AddHealthIndicator contributes a component to the instance health
func (p *ManagementProvider) AddHealthIndicator(name string, indicator management.Indicator) {
	p.health.AddIndicator(name, indicator)
}

// StoreHealthIndicator reports the admin server's event store as a health component
func StoreHealthIndicator(services *service.Services) management.Indicator {
	return management.IndicatorFunc(func(ctx context.Context) management.Health {
		if err := services.Store.Ping(ctx); err != nil {
			return management.Health{Status: domain.StatusDown, Details: map[string]any{"error": err.Error()}}
		}
		return management.Health{Status: domain.StatusUp}
	})
}
