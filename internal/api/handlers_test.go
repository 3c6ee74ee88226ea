package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/service"
	"github.com/sirosfoundation/go-service-admin/internal/storage/memory"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Monitor.Enabled = false
	return cfg
}

func setupTestServices(t *testing.T, cfg *config.Config) *service.Services {
	t.Helper()
	logger := zap.NewNop()
	services, err := service.NewServices(memory.NewStore(100, logger), cfg, metrics.New(), logger)
	if err != nil {
		t.Fatalf("Failed to create services: %v", err)
	}
	return services
}

func setupTestHandlers(t *testing.T) (*Handlers, *gin.Engine) {
	t.Helper()
	cfg := testConfig()
	handlers := NewHandlers(setupTestServices(t, cfg), cfg, zap.NewNop(), []string{"server"})

	router := gin.New()
	router.GET("/status", handlers.Status)
	router.POST("/instances", handlers.RegisterInstance)
	router.GET("/instances", handlers.ListInstances)
	router.GET("/instances/events", handlers.InstanceEvents)
	router.GET("/instances/:id", handlers.GetInstance)
	router.DELETE("/instances/:id", handlers.DeregisterInstance)
	return handlers, router
}

func perform(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerInstance(t *testing.T, router http.Handler, body string) string {
	t.Helper()
	w := perform(router, http.MethodPost, "/instances", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return resp["id"]
}

const ordersRegistration = `{
	"name": "orders",
	"healthUrl": "http://node1:8080/actuator/health",
	"managementUrl": "http://node1:8080/actuator",
	"serviceUrl": "http://node1:8080",
	"metadata": {"db.password": "hunter2", "tags.env": "prod", "zone": "eu-1"}
}`

func TestNewHandlers(t *testing.T) {
	handlers, _ := setupTestHandlers(t)
	if handlers == nil {
		t.Fatal("Expected handlers to not be nil")
	}
}

func TestHandlers_Status(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := perform(router, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("Expected status 'ok', got %v", response.Status)
	}
	if response.Service != "service-admin" {
		t.Errorf("Expected service 'service-admin', got %v", response.Service)
	}
	if response.APIVersion != CurrentAPIVersion {
		t.Errorf("Expected api_version %d, got %d", CurrentAPIVersion, response.APIVersion)
	}
	if len(response.Capabilities) == 0 {
		t.Error("Expected capabilities")
	}
}

func TestHandlers_RegisterInstance(t *testing.T) {
	_, router := setupTestHandlers(t)

	w := perform(router, http.MethodPost, "/instances", ordersRegistration)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	id := resp["id"]
	if len(id) != 12 {
		t.Errorf("Expected 12 character id, got %q", id)
	}
	if loc := w.Header().Get("Location"); loc != "/instances/"+id {
		t.Errorf("Expected Location /instances/%s, got %q", id, loc)
	}

	// same health URL, same id
	if again := registerInstance(t, router, ordersRegistration); again != id {
		t.Errorf("Expected re-registration to keep id %s, got %s", id, again)
	}
}

func TestHandlers_RegisterInstance_Invalid(t *testing.T) {
	_, router := setupTestHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"missing name", `{"healthUrl":"http://node1:8080/health"}`},
		{"missing health url", `{"name":"orders"}`},
		{"relative health url", `{"name":"orders","healthUrl":"/health"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, http.MethodPost, "/instances", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("Expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestHandlers_GetInstance(t *testing.T) {
	_, router := setupTestHandlers(t)
	id := registerInstance(t, router, ordersRegistration)

	w := perform(router, http.MethodGet, "/instances/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var inst domain.Instance
	if err := json.Unmarshal(w.Body.Bytes(), &inst); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if string(inst.ID) != id {
		t.Errorf("Expected id %s, got %s", id, inst.ID)
	}
	if inst.Registration.Metadata["db.password"] != "******" {
		t.Errorf("Expected password to be sanitized, got %q", inst.Registration.Metadata["db.password"])
	}
	if inst.Registration.Metadata["zone"] != "eu-1" {
		t.Errorf("Expected zone to be kept, got %q", inst.Registration.Metadata["zone"])
	}
	if inst.Registration.Source != "http-api" {
		t.Errorf("Expected source http-api, got %q", inst.Registration.Source)
	}
	if !strings.Contains(w.Body.String(), `"tags":{"env":"prod"}`) {
		t.Errorf("Expected flat tags, got %s", w.Body.String())
	}

	w = perform(router, http.MethodGet, "/instances/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlers_ListInstances(t *testing.T) {
	_, router := setupTestHandlers(t)
	registerInstance(t, router, ordersRegistration)
	registerInstance(t, router, `{"name":"billing","healthUrl":"http://node2:8080/health"}`)

	var all []domain.Instance
	w := perform(router, http.MethodGet, "/instances", "")
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 instances, got %d", len(all))
	}

	var byName []domain.Instance
	w = perform(router, http.MethodGet, "/instances?name=billing", "")
	if err := json.Unmarshal(w.Body.Bytes(), &byName); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(byName) != 1 || byName[0].Registration.Name != "billing" {
		t.Errorf("Expected only billing, got %+v", byName)
	}

	w = perform(router, http.MethodGet, "/instances?name=nope", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}
}

func TestHandlers_DeregisterInstance(t *testing.T) {
	_, router := setupTestHandlers(t)
	id := registerInstance(t, router, ordersRegistration)

	w := perform(router, http.MethodDelete, "/instances/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	w = perform(router, http.MethodDelete, "/instances/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	// deregistered instances are no longer listed
	w = perform(router, http.MethodGet, "/instances", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}
}

func TestHandlers_InstanceEvents(t *testing.T) {
	_, router := setupTestHandlers(t)
	id := registerInstance(t, router, ordersRegistration)
	perform(router, http.MethodDelete, "/instances/"+id, "")

	w := perform(router, http.MethodGet, "/instances/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var events []domain.InstanceEvent
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.EventRegistered || events[1].Type != domain.EventDeregistered {
		t.Errorf("Unexpected event types %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].Version != 1 || events[1].Version != 2 {
		t.Errorf("Expected versions 1 and 2, got %d and %d", events[0].Version, events[1].Version)
	}
	if events[0].Registration.Metadata["db.password"] != "******" {
		t.Error("Expected event metadata to be sanitized")
	}
}

func TestHandlers_InstanceEvents_Stream(t *testing.T) {
	_, router := setupTestHandlers(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/instances/events", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected event stream content type, got %q", ct)
	}

	// headers are flushed after subscribing, so this registration is streamed
	done := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") {
				done <- strings.TrimPrefix(line, "data:")
				return
			}
		}
	}()

	registerInstance(t, router, ordersRegistration)

	select {
	case data := <-done:
		var ev domain.InstanceEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if ev.Type != domain.EventRegistered {
			t.Errorf("Expected REGISTERED event, got %s", ev.Type)
		}
		if ev.Registration.Metadata["db.password"] != "******" {
			t.Error("Expected streamed metadata to be sanitized")
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for event")
	}
}
