package all

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/client/registration"
	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/modes"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.AdminToken = "test-admin-token"
	cfg.Monitor.Enabled = false
	cfg.Instance.Name = "service-admin"
	cfg.Instance.Host = "127.0.0.1"
	cfg.Instance.Port = 0
	cfg.Client.URLs = nil
	cfg.Client.AutoDeregistration = true
	return cfg
}

func TestRunner_Registered(t *testing.T) {
	r, err := modes.NewRunner(modes.ModeAll, &Config{Config: testConfig()})
	require.NoError(t, err)
	assert.Equal(t, modes.ModeAll, r.Name())

	_, err = New(nil)
	assert.Error(t, err)
}

func TestRunner_InstanceRegistersWithLocalServer(t *testing.T) {
	r, err := New(&Config{
		Config: testConfig(),
		Logger: zap.NewNop(),
		Hosts:  registration.StaticHost("127.0.0.1"),
	})
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
		t.Fatal("admin server did not start")
	}

	services := r.ServerRunner().Services()
	require.NotNil(t, services)

	var instances []*domain.Instance
	require.Eventually(t, func() bool {
		instances, err = services.Registry.GetInstancesByName(context.Background(), "service-admin")
		return err == nil && len(instances) == 1
	}, 10*time.Second, 50*time.Millisecond)

	require.NotNil(t, r.InstanceRunner())
	assert.Equal(t, string(instances[0].ID), r.InstanceRunner().RegisteredID())

	cancel()
	require.NoError(t, <-done)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, r.Shutdown(shutdownCtx))
}

func TestRunner_ShutdownBeforeRun(t *testing.T) {
	r, err := New(&Config{Config: testConfig()})
	require.NoError(t, err)
	assert.Nil(t, r.InstanceRunner())
	assert.NoError(t, r.Shutdown(context.Background()))
}
