// Package integration runs the admin server API end to end over HTTP,
// together with the registration client and the status poller.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/server"
	"github.com/sirosfoundation/go-service-admin/internal/service"
	"github.com/sirosfoundation/go-service-admin/internal/storage/memory"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// TestAdminToken guards the admin-only routes of the harness
const TestAdminToken = "integration-admin-token"

// TestHarness provides a complete test environment with an HTTP server,
// configured services, and helper methods for making API requests.
type TestHarness struct {
	T        *testing.T
	Server   *httptest.Server
	Config   *config.Config
	Router   *gin.Engine
	Services *service.Services
	Logger   *zap.Logger

	// Client is a pre-configured HTTP client for making requests
	Client *http.Client

	// BaseURL is the URL of the test server
	BaseURL string
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithConfig sets a custom config for the test harness
func WithConfig(cfg *config.Config) TestHarnessOption {
	return func(h *TestHarness) {
		h.Config = cfg
	}
}

// TestConfig returns the default harness configuration: in-memory storage,
// no background polling and a fixed admin token
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.AdminToken = TestAdminToken
	cfg.Monitor.Enabled = false
	cfg.RateLimit.Enabled = false
	return cfg
}

// NewTestHarness creates a new test harness with a running test server
func NewTestHarness(t *testing.T, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	if testing.Verbose() {
		logger, _ = zap.NewDevelopment()
	}

	h := &TestHarness{
		T:      t,
		Logger: logger,
		Client: &http.Client{},
	}

	// Apply options
	for _, opt := range opts {
		opt(h)
	}

	// Default config if not provided
	if h.Config == nil {
		h.Config = TestConfig()
	}

	store := memory.NewStore(h.Config.Storage.Memory.MaxLogSizePerInstance, logger)
	services, err := service.NewServices(store, h.Config, metrics.New(), logger)
	if err != nil {
		t.Fatalf("Failed to create services: %v", err)
	}
	h.Services = services

	provider, err := server.NewAdminProviderWithServices(h.Config, services, logger, []string{"server"})
	if err != nil {
		t.Fatalf("Failed to create admin provider: %v", err)
	}

	// Setup router, mirroring the server mode
	h.Router = gin.New()
	h.Router.Use(gin.Recovery())
	provider.RegisterRoutes(h.Router.Group("/"))

	provider.Start()

	// Create test server
	h.Server = httptest.NewServer(h.Router)
	h.BaseURL = h.Server.URL

	// Register cleanup
	t.Cleanup(func() {
		h.Server.Close()
		_ = provider.Close()
	})

	return h
}

// Request makes an HTTP request to the test server
func (h *TestHarness) Request(method, path string, body interface{}) *Response {
	h.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return h.Do(req)
}

// Do executes an HTTP request and returns a Response wrapper
func (h *TestHarness) Do(req *http.Request) *Response {
	h.T.Helper()

	resp, err := h.Client.Do(req)
	if err != nil {
		h.T.Fatalf("Request failed: %v", err)
	}

	return &Response{
		T:        h.T,
		Response: resp,
	}
}

// GET makes a GET request
func (h *TestHarness) GET(path string) *Response {
	return h.Request(http.MethodGet, path, nil)
}

// POST makes a POST request with a JSON body
func (h *TestHarness) POST(path string, body interface{}) *Response {
	return h.Request(http.MethodPost, path, body)
}

// DELETE makes a DELETE request
func (h *TestHarness) DELETE(path string) *Response {
	return h.Request(http.MethodDelete, path, nil)
}

// WithAuth returns a new request builder with authentication
func (h *TestHarness) WithAuth(token string) *AuthenticatedClient {
	return &AuthenticatedClient{
		harness: h,
		token:   token,
	}
}

// AuthenticatedClient wraps the harness with auth headers
type AuthenticatedClient struct {
	harness *TestHarness
	token   string
}

// GET makes an authenticated GET request
func (c *AuthenticatedClient) GET(path string) *Response {
	c.harness.T.Helper()
	req, _ := http.NewRequest(http.MethodGet, c.harness.BaseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.harness.Do(req)
}

// POST makes an authenticated POST request
func (c *AuthenticatedClient) POST(path string, body interface{}) *Response {
	c.harness.T.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBody)
	}
	req, _ := http.NewRequest(http.MethodPost, c.harness.BaseURL+path, bodyReader)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.harness.Do(req)
}

// DELETE makes an authenticated DELETE request
func (c *AuthenticatedClient) DELETE(path string) *Response {
	c.harness.T.Helper()
	req, _ := http.NewRequest(http.MethodDelete, c.harness.BaseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.harness.Do(req)
}

// Response wraps an HTTP response with assertion helpers
type Response struct {
	T        *testing.T
	Response *http.Response
	body     []byte
	bodyRead bool
}

// Body returns the response body as bytes
func (r *Response) Body() []byte {
	r.T.Helper()
	if !r.bodyRead {
		var err error
		r.body, err = io.ReadAll(r.Response.Body)
		if err != nil {
			r.T.Fatalf("Failed to read response body: %v", err)
		}
		r.Response.Body.Close()
		r.bodyRead = true
	}
	return r.body
}

// JSON unmarshals the response body into the given target
func (r *Response) JSON(target interface{}) *Response {
	r.T.Helper()
	if err := json.Unmarshal(r.Body(), target); err != nil {
		r.T.Fatalf("Failed to unmarshal response: %v\nBody: %s", err, string(r.Body()))
	}
	return r
}

// Status asserts the response status code
func (r *Response) Status(expected int) *Response {
	r.T.Helper()
	if r.Response.StatusCode != expected {
		r.T.Errorf("Expected status %d, got %d\nBody: %s", expected, r.Response.StatusCode, string(r.Body()))
	}
	return r
}

// Header returns the value of a response header
func (r *Response) Header(name string) string {
	return r.Response.Header.Get(name)
}

// HasHeader asserts that a header exists
func (r *Response) HasHeader(name string) *Response {
	r.T.Helper()
	if r.Header(name) == "" {
		r.T.Errorf("Expected header %q to be present", name)
	}
	return r
}

// BodyContains asserts the response body contains a substring
func (r *Response) BodyContains(substr string) *Response {
	r.T.Helper()
	if !bytes.Contains(r.Body(), []byte(substr)) {
		r.T.Errorf("Expected body to contain %q\nBody: %s", substr, string(r.Body()))
	}
	return r
}

// BodyEquals asserts the response body equals exactly
func (r *Response) BodyEquals(expected string) *Response {
	r.T.Helper()
	if string(r.Body()) != expected {
		r.T.Errorf("Expected body:\n%s\nGot:\n%s", expected, string(r.Body()))
	}
	return r
}
