package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/modes"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.AdminToken = "test-admin-token"
	cfg.Monitor.Enabled = false
	return cfg
}

func startRunner(t *testing.T, cfg *config.Config) *Runner {
	t.Helper()
	r, err := New(&Config{Config: cfg, Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-r.Started():
	case err := <-done:
		cancel()
		t.Fatalf("runner exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("runner did not start")
	}

	t.Cleanup(func() {
		cancel()
		<-done
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		assert.NoError(t, r.Shutdown(shutdownCtx))
	})
	return r
}

func TestRunner_Registered(t *testing.T) {
	r, err := modes.NewRunner(modes.ModeServer, &Config{Config: testConfig()})
	require.NoError(t, err)
	assert.Equal(t, modes.ModeServer, r.Name())

	_, err = modes.NewRunner(modes.ModeServer, "not a config")
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestRunner_ServesAdminAPI(t *testing.T) {
	r := startRunner(t, testConfig())
	port := r.Port()
	require.NotZero(t, port)
	assert.Equal(t, "test-admin-token", r.AdminToken())
	require.NotNil(t, r.Services())

	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	resp, err := http.Get(base + "/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"server"`)

	resp, err = http.Post(base+"/instances", "application/json",
		strings.NewReader(`{"name":"orders","healthUrl":"http://node1:8080/actuator/health"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	apps, err := r.Services().Registry.GetInstancesByName(context.Background(), "orders")
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestRunner_ShutdownBeforeRun(t *testing.T) {
	r, err := New(&Config{Config: testConfig()})
	require.NoError(t, err)
	assert.NoError(t, r.Shutdown(context.Background()))
	assert.Zero(t, r.Port())
	assert.Empty(t, r.AdminToken())
}
