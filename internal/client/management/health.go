package management

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

// Health is the state of one component or of the whole instance
type Health struct {
	Status  domain.Status  `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// Indicator reports the health of a component
type Indicator interface {
	Health(ctx context.Context) Health
}

// IndicatorFunc adapts a function to Indicator
type IndicatorFunc func(ctx context.Context) Health

// Health calls f(ctx)
func (f IndicatorFunc) Health(ctx context.Context) Health {
	return f(ctx)
}

// PingIndicator is always UP
var PingIndicator = IndicatorFunc(func(context.Context) Health {
	return Health{Status: domain.StatusUp}
})

// HealthEndpoint aggregates named indicators into the instance health
type HealthEndpoint struct {
	timeout time.Duration

	mu         sync.RWMutex
	indicators map[string]Indicator
}

// NewHealthEndpoint creates a health endpoint with a ping indicator
func NewHealthEndpoint(timeout time.Duration) *HealthEndpoint {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthEndpoint{
		timeout:    timeout,
		indicators: map[string]Indicator{"ping": PingIndicator},
	}
}

// AddIndicator registers or replaces the indicator for a component
func (h *HealthEndpoint) AddIndicator(name string, indicator Indicator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.indicators[name] = indicator
}

// Check evaluates all indicators. The overall status is the worst component status.
func (h *HealthEndpoint) Check(ctx context.Context) Health {
	h.mu.RLock()
	names := make([]string, 0, len(h.indicators))
	for name := range h.indicators {
		names = append(names, name)
	}
	indicators := make(map[string]Indicator, len(h.indicators))
	for k, v := range h.indicators {
		indicators[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	statuses := make([]domain.Status, 0, len(names))
	components := make(map[string]any, len(names))
	for _, name := range names {
		component := indicators[name].Health(ctx)
		if component.Status == "" {
			component.Status = domain.StatusUnknown
		}
		statuses = append(statuses, component.Status)
		components[name] = component
	}

	return Health{
		Status:  domain.WorstStatus(statuses...),
		Details: components,
	}
}

// Handler serves the aggregated health. DOWN and OUT_OF_SERVICE answer 503.
func (h *HealthEndpoint) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := h.Check(c.Request.Context())
		code := http.StatusOK
		switch health.Status {
		case domain.StatusDown, domain.StatusOutOfService:
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}
