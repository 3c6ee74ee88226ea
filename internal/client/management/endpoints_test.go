package management

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-service-admin/internal/client/registration"
	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(e *Endpoints) *gin.Engine {
	r := gin.New()
	e.Mount(&r.RouterGroup)
	return r
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestEndpoints_Path(t *testing.T) {
	tests := []struct {
		basePath string
		want     string
	}{
		{"", "/actuator/health"},
		{"/admin/", "/admin/health"},
		{"mgmt", "/mgmt/health"},
		{"/", "/health"},
	}
	for _, tt := range tests {
		e := NewEndpoints(tt.basePath)
		_, ok := e.Path("health")
		assert.False(t, ok)

		e.Register("health", NewHealthEndpoint(0).Handler())
		path, ok := e.Path("health")
		assert.True(t, ok)
		assert.Equal(t, tt.want, path, "base path %q", tt.basePath)
	}
}

func TestEndpoints_ImplementsLookup(t *testing.T) {
	var lookup registration.EndpointPathLookup = NewEndpoints("/actuator")
	_, ok := lookup.Path("status")
	assert.False(t, ok)
}

func TestEndpoints_Mount(t *testing.T) {
	e := NewEndpoints("/actuator")
	e.Register("health", NewHealthEndpoint(0).Handler())
	e.Register("/info/", NewInfoEndpoint("orders", "1.2.3", map[string]string{"zone": "eu-1"}).Handler())
	assert.Equal(t, []string{"health", "info"}, e.IDs())

	r := newTestRouter(e)

	w := get(t, r, "/actuator/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP","details":{"ping":{"status":"UP"}}}`, w.Body.String())

	w = get(t, r, "/actuator/info")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, map[string]any{"name": "orders", "version": "1.2.3"}, info["app"])
	assert.Equal(t, map[string]any{"zone": "eu-1"}, info["metadata"])

	w = get(t, r, "/actuator")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"_links":{"health":{"href":"/actuator/health"},"info":{"href":"/actuator/info"}}}`, w.Body.String())
}

func TestHealthEndpoint_Aggregation(t *testing.T) {
	h := NewHealthEndpoint(0)
	h.AddIndicator("db", IndicatorFunc(func(context.Context) Health {
		return Health{Status: domain.StatusDown, Details: map[string]any{"error": "connection refused"}}
	}))
	h.AddIndicator("disk", IndicatorFunc(func(context.Context) Health { return Health{} }))

	health := h.Check(context.Background())
	assert.Equal(t, domain.StatusDown, health.Status)
	assert.Equal(t, domain.StatusUnknown, health.Details["disk"].(Health).Status)

	e := NewEndpoints("")
	e.Register("health", h.Handler())
	w := get(t, newTestRouter(e), "/actuator/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"connection refused"`)
}

func TestHealthEndpoint_OutOfService(t *testing.T) {
	h := NewHealthEndpoint(0)
	h.AddIndicator("maintenance", IndicatorFunc(func(context.Context) Health {
		return Health{Status: domain.StatusOutOfService}
	}))

	e := NewEndpoints("")
	e.Register("health", h.Handler())
	w := get(t, newTestRouter(e), "/actuator/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OUT_OF_SERVICE"`)
}
