package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/service"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
	"github.com/sirosfoundation/go-service-admin/pkg/middleware"
)

// registrationSource marks registrations received over the HTTP API
const registrationSource = "http-api"

// Handlers aggregates the instance HTTP handlers
type Handlers struct {
	services *service.Services
	cfg      *config.Config
	logger   *zap.Logger
	roles    []string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services *service.Services, cfg *config.Config, logger *zap.Logger, roles []string) *Handlers {
	return &Handlers{
		services: services,
		cfg:      cfg,
		logger:   logger.Named("handlers"),
		roles:    roles,
	}
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	resp := StatusResponse{
		Status:       "ok",
		Service:      "service-admin",
		Roles:        h.roles,
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	}

	if err := h.services.Store.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Event store unreachable", zap.Error(err))
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterInstance registers a new instance or updates an existing registration
// POST /instances
func (h *Handlers) RegisterInstance(c *gin.Context) {
	var reg domain.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration: " + err.Error()})
		return
	}
	if reg.Source == "" {
		reg.Source = registrationSource
	}

	id, err := h.services.Registry.Register(c.Request.Context(), reg)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRegistration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to register instance", zap.Error(err), zap.String("name", reg.Name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register instance"})
		return
	}

	h.logger.Debug("Instance registered",
		zap.String("id", id.String()),
		zap.String("name", reg.Name),
		zap.Bool("authenticated", middleware.IsAuthenticated(c)))

	c.Header("Location", strings.TrimSuffix(c.Request.URL.Path, "/")+"/"+id.String())
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// ListInstances returns all registered instances, optionally filtered by name
// GET /instances[?name=]
func (h *Handlers) ListInstances(c *gin.Context) {
	var (
		instances []*domain.Instance
		err       error
	)
	if name := c.Query("name"); name != "" {
		instances, err = h.services.Registry.GetInstancesByName(c.Request.Context(), name)
	} else {
		instances, err = h.services.Registry.GetInstances(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("Failed to list instances", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list instances"})
		return
	}

	c.JSON(http.StatusOK, h.sanitizeInstances(instances))
}

// GetInstance returns a registered instance
// GET /instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id := domain.InstanceID(c.Param("id"))

	inst, err := h.services.Registry.GetInstance(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
			return
		}
		h.logger.Error("Failed to get instance", zap.Error(err), zap.String("id", id.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get instance"})
		return
	}

	c.JSON(http.StatusOK, h.services.Sanitizer.SanitizeInstance(inst))
}

// DeregisterInstance deregisters an instance
// DELETE /instances/:id
func (h *Handlers) DeregisterInstance(c *gin.Context) {
	id := domain.InstanceID(c.Param("id"))

	if err := h.services.Registry.Deregister(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
			return
		}
		h.logger.Error("Failed to deregister instance", zap.Error(err), zap.String("id", id.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deregister instance"})
		return
	}

	c.Status(http.StatusNoContent)
}

// InstanceEvents returns the event log of all instances, or streams new
// events as server-sent events when the client accepts text/event-stream
// GET /instances/events
func (h *Handlers) InstanceEvents(c *gin.Context) {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.streamEvents(c)
		return
	}

	events, err := h.services.Store.FindAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
		return
	}

	out := make([]domain.InstanceEvent, len(events))
	for i, ev := range events {
		out[i] = h.services.Sanitizer.SanitizeEvent(ev)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) streamEvents(c *gin.Context) {
	events, unsubscribe := h.services.Store.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	// send headers now so clients see the subscription before the first event
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("message", h.services.Sanitizer.SanitizeEvent(ev))
			return true
		}
	})
}

func (h *Handlers) sanitizeInstances(instances []*domain.Instance) []*domain.Instance {
	out := make([]*domain.Instance, len(instances))
	for i, inst := range instances {
		out[i] = h.services.Sanitizer.SanitizeInstance(inst)
	}
	return out
}
