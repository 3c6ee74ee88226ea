package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/notify"
	"github.com/sirosfoundation/go-service-admin/internal/service"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
)

// AdminHandlers contains handlers for application and notification filter endpoints
type AdminHandlers struct {
	services *service.Services
	logger   *zap.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(services *service.Services, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		services: services,
		logger:   logger.Named("admin-handlers"),
	}
}

// ListApplications returns registered instances grouped by application name
// GET /applications
func (h *AdminHandlers) ListApplications(c *gin.Context) {
	instances, err := h.services.Registry.GetInstances(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list applications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list applications"})
		return
	}

	apps := domain.GroupApplications(instances)
	for i := range apps {
		apps[i] = h.sanitizeApplication(apps[i])
	}
	c.JSON(http.StatusOK, apps)
}

// GetApplication returns a single application
// GET /applications/:name
func (h *AdminHandlers) GetApplication(c *gin.Context) {
	name := c.Param("name")

	instances, err := h.services.Registry.GetInstancesByName(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to get application", zap.Error(err), zap.String("name", name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get application"})
		return
	}
	if len(instances) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}

	c.JSON(http.StatusOK, h.sanitizeApplication(domain.NewApplication(name, instances)))
}

// DeregisterApplication deregisters every instance of an application
// DELETE /applications/:name
func (h *AdminHandlers) DeregisterApplication(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	instances, err := h.services.Registry.GetInstancesByName(ctx, name)
	if err != nil {
		h.logger.Error("Failed to get application", zap.Error(err), zap.String("name", name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deregister application"})
		return
	}
	if len(instances) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}

	for _, inst := range instances {
		// a concurrent deregistration is fine
		if err := h.services.Registry.Deregister(ctx, inst.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Error("Failed to deregister instance",
				zap.Error(err),
				zap.String("name", name),
				zap.String("id", inst.ID.String()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deregister application"})
			return
		}
	}

	h.logger.Info("Application deregistered", zap.String("name", name), zap.Int("instances", len(instances)))
	c.Status(http.StatusNoContent)
}

// ListNotificationFilters returns the active notification filters
// GET /notifications/filters
func (h *AdminHandlers) ListNotificationFilters(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Notifier.Filters())
}

// AddNotificationFilter adds a filter for an instance id or an application name.
// ttl is in milliseconds; without it the filter never expires.
// POST /notifications/filters?instanceId=|name=&ttl=
func (h *AdminHandlers) AddNotificationFilter(c *gin.Context) {
	instanceID := c.Query("instanceId")
	name := c.Query("name")

	var ttl int64 = -1
	if raw := c.Query("ttl"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a number of milliseconds"})
			return
		}
		if parsed > notify.MaxTTLMillis {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("ttl must not exceed %d milliseconds", notify.MaxTTLMillis)})
			return
		}
		ttl = parsed
	}

	var filter notify.NotificationFilter
	switch {
	case instanceID != "":
		filter = notify.NewInstanceIDFilter(domain.InstanceID(instanceID), ttl)
	case name != "":
		filter = notify.NewApplicationNameFilter(name, ttl)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either 'instanceId' or 'name' must be set"})
		return
	}

	entry := h.services.Notifier.AddFilter(filter)
	h.logger.Info("Notification filter added", zap.String("filter_id", entry.ID))
	c.JSON(http.StatusOK, entry)
}

// RemoveNotificationFilter deletes a notification filter
// DELETE /notifications/filters/:id
func (h *AdminHandlers) RemoveNotificationFilter(c *gin.Context) {
	entry, ok := h.services.Notifier.RemoveFilter(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification filter not found"})
		return
	}

	h.logger.Info("Notification filter removed", zap.String("filter_id", entry.ID))
	c.JSON(http.StatusOK, entry)
}

func (h *AdminHandlers) sanitizeApplication(app domain.Application) domain.Application {
	instances := make([]*domain.Instance, len(app.Instances))
	for i, inst := range app.Instances {
		instances[i] = h.services.Sanitizer.SanitizeInstance(inst)
	}
	app.Instances = instances
	return app
}
