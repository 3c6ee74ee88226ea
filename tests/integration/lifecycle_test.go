package integration

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/client/management"
	"github.com/sirosfoundation/go-service-admin/internal/client/registration"
	"github.com/sirosfoundation/go-service-admin/internal/domain"
	modeinstance "github.com/sirosfoundation/go-service-admin/internal/modes/instance"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// monitoredInstance runs an instance whose health is switched by the test
type monitoredInstance struct {
	runner *modeinstance.Runner
	status atomic.Value
	stop   func()
}

func startMonitoredInstance(t *testing.T, h *TestHarness, name string) *monitoredInstance {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Instance.Name = name
	cfg.Instance.Host = "127.0.0.1"
	cfg.Instance.Port = 0
	cfg.Instance.Metadata = map[string]string{"db.password": "hunter2", "zone": "eu-1"}
	cfg.Client.URLs = []string{h.BaseURL}
	cfg.Client.Period = time.Second
	cfg.Client.AutoDeregistration = true

	m := &monitoredInstance{}
	m.status.Store(domain.StatusUp)

	runner, err := modeinstance.New(&modeinstance.Config{
		Config:  cfg,
		Logger:  h.Logger,
		Version: "1.0.0",
		Hosts:   registration.StaticHost("127.0.0.1"),
		Indicators: map[string]management.Indicator{
			"switch": management.IndicatorFunc(func(context.Context) management.Health {
				return management.Health{Status: m.status.Load().(domain.Status)}
			}),
		},
	})
	require.NoError(t, err)
	m.runner = runner

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-runner.Started():
	case err := <-done:
		cancel()
		t.Fatalf("instance exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("instance did not start")
	}

	stopped := false
	m.stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		<-done
		shutdownCtx, stopCtx := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCtx()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			h.Logger.Warn("Instance shutdown failed", zap.Error(err))
		}
	}
	t.Cleanup(m.stop)
	return m
}

func (m *monitoredInstance) awaitRegistration(t *testing.T) domain.InstanceID {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.runner.RegisteredID() != ""
	}, 10*time.Second, 20*time.Millisecond, "instance never registered")
	return domain.InstanceID(m.runner.RegisteredID())
}

func TestInstanceLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	ctx := context.Background()

	inst := startMonitoredInstance(t, h, "orders")
	id := inst.awaitRegistration(t)

	var registered domain.Instance
	h.GET("/instances/" + string(id)).Status(http.StatusOK).JSON(&registered)
	assert.Equal(t, domain.StatusUnknown, registered.StatusInfo.Status)
	assert.Equal(t, "orders", registered.Registration.Name)
	assert.True(t, strings.HasSuffix(registered.Registration.HealthURL, "/actuator/health"))
	assert.Equal(t, "******", registered.Registration.Metadata["db.password"])
	assert.Equal(t, "eu-1", registered.Registration.Metadata["zone"])
	assert.Contains(t, registered.Registration.Metadata, registration.MetadataStartup)

	// health is polled from the instance's management endpoint
	require.NoError(t, h.Services.StatusUpdater.UpdateStatus(ctx, id))
	var up domain.Instance
	h.GET("/instances/" + string(id)).Status(http.StatusOK).JSON(&up)
	assert.Equal(t, domain.StatusUp, up.StatusInfo.Status)
	assert.Contains(t, up.StatusInfo.Details, "switch")

	inst.status.Store(domain.StatusDown)
	require.NoError(t, h.Services.StatusUpdater.UpdateStatus(ctx, id))

	var app domain.Application
	h.GET("/applications/orders").Status(http.StatusOK).JSON(&app)
	assert.Equal(t, domain.StatusDown, app.Status)
	require.Len(t, app.Instances, 1)

	var events []domain.InstanceEvent
	h.GET("/instances/events").Status(http.StatusOK).JSON(&events)
	var types []domain.EventType
	for _, ev := range events {
		if ev.Instance == id {
			types = append(types, ev.Type)
		}
	}
	assert.Equal(t, []domain.EventType{
		domain.EventRegistered,
		domain.EventStatusChanged,
		domain.EventStatusChanged,
	}, types)

	// shutting the instance down deregisters it
	inst.stop()
	h.GET("/instances?name=orders").Status(http.StatusOK).BodyEquals("[]")
}

func TestReRegistrationKeepsID(t *testing.T) {
	h := NewTestHarness(t)

	first := startMonitoredInstance(t, h, "billing")
	id := first.awaitRegistration(t)

	// the worker re-registers periodically without creating new instances
	time.Sleep(1500 * time.Millisecond)

	var instances []domain.Instance
	h.GET("/instances?name=billing").Status(http.StatusOK).JSON(&instances)
	require.Len(t, instances, 1)
	assert.Equal(t, id, instances[0].ID)
}

func TestStatusPolling(t *testing.T) {
	cfg := TestConfig()
	cfg.Monitor.Enabled = true
	cfg.Monitor.Interval = 100 * time.Millisecond
	cfg.Monitor.StatusLifetime = 100 * time.Millisecond
	h := NewTestHarness(t, WithConfig(cfg))

	inst := startMonitoredInstance(t, h, "catalog")
	id := inst.awaitRegistration(t)

	status := func() domain.Status {
		inst, err := h.Services.Registry.GetInstance(context.Background(), id)
		if err != nil {
			return ""
		}
		return inst.StatusInfo.Status
	}

	require.Eventually(t, func() bool { return status() == domain.StatusUp },
		5*time.Second, 50*time.Millisecond)

	inst.status.Store(domain.StatusOutOfService)
	require.Eventually(t, func() bool { return status() == domain.StatusOutOfService },
		5*time.Second, 50*time.Millisecond)
}
