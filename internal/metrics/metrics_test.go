package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRegistration(RegistrationAccepted)
		m.RecordDeregistration()
		m.RecordStatusCheck(domain.StatusUp, time.Millisecond)
		m.RecordNotification(NotificationSent)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RecordRegistration(RegistrationAccepted)
	m.RecordRegistration(RegistrationAccepted)
	m.RecordRegistration(RegistrationRejected)
	m.RecordDeregistration()
	m.RecordStatusCheck(domain.StatusDown, 20*time.Millisecond)
	m.RecordNotification(NotificationFiltered)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range metric.GetLabel() {
				key += "|" + label.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				values[key] = c.GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["service_admin_registrations_total|accepted"])
	assert.Equal(t, 1.0, values["service_admin_registrations_total|rejected"])
	assert.Equal(t, 1.0, values["service_admin_deregistrations_total"])
	assert.Equal(t, 1.0, values["service_admin_status_checks_total|DOWN"])
	assert.Equal(t, 1.0, values["service_admin_notifications_total|filtered"])
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordRegistration(RegistrationAccepted)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `service_admin_registrations_total{outcome="accepted"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
