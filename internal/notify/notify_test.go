package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
	"github.com/sirosfoundation/go-service-admin/internal/storage/memory"
)

// fakeInstances serves instances from a map
type fakeInstances map[domain.InstanceID]*domain.Instance

func (f fakeInstances) Find(_ context.Context, id domain.InstanceID) (*domain.Instance, error) {
	if inst, ok := f[id]; ok {
		return inst, nil
	}
	return nil, storage.ErrNotFound
}

// recordingNotifier remembers the events it was given
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.InstanceEvent
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev domain.InstanceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testInstances() fakeInstances {
	reg := domain.Registration{Name: "billing", HealthURL: "http://localhost:8080/health"}
	return fakeInstances{
		"1337": domain.NewInstance("1337").Register(reg),
		"4242": domain.NewInstance("4242").Register(domain.Registration{Name: "orders", HealthURL: "http://localhost:9090/health"}),
	}
}

func statusEvent(id domain.InstanceID, version int64, status domain.Status) domain.InstanceEvent {
	return domain.NewStatusChangedEvent(id, version, domain.NewStatusInfo(string(status), nil))
}

func TestLoggingNotifier_IgnoresConfiguredChanges(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLoggingNotifier(testInstances(), []string{"UNKNOWN:UP"}, nil, zap.New(core))
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, domain.NewRegisteredEvent("1337", 1, domain.Registration{})))
	require.NoError(t, n.Notify(ctx, statusEvent("1337", 2, domain.StatusUp)))
	assert.Equal(t, 0, logs.Len(), "UNKNOWN:UP is ignored")

	require.NoError(t, n.Notify(ctx, statusEvent("1337", 3, domain.StatusDown)))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Instance status changed", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "billing", fields["name"])
	assert.Equal(t, "UP", fields["from"])
	assert.Equal(t, "DOWN", fields["to"])

	// non status events are not logged
	require.NoError(t, n.Notify(ctx, domain.NewDeregisteredEvent("1337", 4)))
	assert.Equal(t, 1, logs.Len())
}

func TestStatusChanges_Wildcards(t *testing.T) {
	changes := newStatusChanges([]string{"*:OFFLINE", "DOWN:*", "malformed"})

	_, changed, notify := changes.observe(statusEvent("a", 1, domain.StatusOffline))
	assert.True(t, changed)
	assert.False(t, notify)

	_, _, notify = changes.observe(statusEvent("a", 2, domain.StatusDown))
	assert.True(t, notify)

	from, _, notify := changes.observe(statusEvent("a", 3, domain.StatusUp))
	assert.Equal(t, domain.StatusDown, from)
	assert.False(t, notify)
}

func TestFilteringNotifier_AddListRemove(t *testing.T) {
	n := NewFilteringNotifier(&recordingNotifier{}, testInstances(), nil, zap.NewNop())

	entry := n.AddFilter(NewInstanceIDFilter("1337", 10000))
	assert.NotEmpty(t, entry.ID)

	filters := n.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, entry.ID, filters[0].ID)

	removed, ok := n.RemoveFilter(entry.ID)
	assert.True(t, ok)
	assert.Equal(t, entry.ID, removed.ID)
	assert.Empty(t, n.Filters())

	_, ok = n.RemoveFilter("abcdef")
	assert.False(t, ok)
}

func TestFilteringNotifier_Filters(t *testing.T) {
	ctx := context.Background()
	delegate := &recordingNotifier{}
	n := NewFilteringNotifier(delegate, testInstances(), nil, zap.NewNop())

	n.AddFilter(NewInstanceIDFilter("1337", 0))
	require.NoError(t, n.Notify(ctx, statusEvent("1337", 2, domain.StatusDown)))
	assert.Equal(t, 0, delegate.count())

	require.NoError(t, n.Notify(ctx, statusEvent("4242", 2, domain.StatusDown)))
	assert.Equal(t, 1, delegate.count())

	n.AddFilter(NewApplicationNameFilter("orders", 0))
	require.NoError(t, n.Notify(ctx, statusEvent("4242", 3, domain.StatusUp)))
	assert.Equal(t, 1, delegate.count())

	// unknown instances only match instance id filters
	require.NoError(t, n.Notify(ctx, statusEvent("9999", 1, domain.StatusUp)))
	assert.Equal(t, 2, delegate.count())
}

func TestFilteringNotifier_ExpiredFiltersArePurged(t *testing.T) {
	ctx := context.Background()
	delegate := &recordingNotifier{}
	n := NewFilteringNotifier(delegate, testInstances(), nil, zap.NewNop())

	n.AddFilter(NewInstanceIDFilter("1337", 1000))
	n.now = func() time.Time { return time.Now().Add(2 * time.Second) }

	require.NoError(t, n.Notify(ctx, statusEvent("1337", 2, domain.StatusDown)))
	assert.Equal(t, 1, delegate.count())
	assert.Empty(t, n.Filters())
}

func TestFilteringNotifier_PropagatesDelegateErrors(t *testing.T) {
	boom := errors.New("boom")
	n := NewFilteringNotifier(&recordingNotifier{err: boom}, testInstances(), nil, zap.NewNop())

	err := n.Notify(context.Background(), statusEvent("1337", 2, domain.StatusDown))
	assert.ErrorIs(t, err, boom)
}

func TestFilters_Expiry(t *testing.T) {
	never := NewApplicationNameFilter("billing", 0)
	assert.Nil(t, never.Expiry())
	assert.False(t, never.IsExpired(time.Now().Add(100*365*24*time.Hour)))

	soon := NewInstanceIDFilter("1337", 500)
	require.NotNil(t, soon.Expiry())
	assert.False(t, soon.IsExpired(time.Now()))
	assert.True(t, soon.IsExpired(time.Now().Add(time.Second)))
}

func TestFilters_TTLLimits(t *testing.T) {
	now := time.Now()

	longest := NewInstanceIDFilter("1337", MaxTTLMillis)
	require.NotNil(t, longest.Expiry())
	assert.True(t, longest.Expiry().After(now.Add(290*365*24*time.Hour)))
	assert.False(t, longest.IsExpired(now))

	beyond := NewApplicationNameFilter("billing", 10_000_000_000_000)
	assert.Nil(t, beyond.Expiry())
	assert.False(t, beyond.IsExpired(now))
}

func TestFilterEntry_JSON(t *testing.T) {
	entry := FilterEntry{ID: "abc", Filter: NewInstanceIDFilter("1337", 10000)}
	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "abc", got["id"])
	assert.Equal(t, "1337", got["instanceId"])
	assert.Equal(t, false, got["expired"])
	assert.NotEmpty(t, got["expiry"])

	data, err = json.Marshal(FilterEntry{ID: "def", Filter: NewApplicationNameFilter("billing", 0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"def","applicationName":"billing","expired":false}`, string(data))
}

func TestNotificationTrigger_ForwardsEvents(t *testing.T) {
	store := memory.NewStore(0, nil)
	delegate := &recordingNotifier{}
	trigger := NewNotificationTrigger(store, delegate, nil, zap.NewNop())

	trigger.Start()
	defer trigger.Stop()

	require.NoError(t, store.Append(context.Background(), []domain.InstanceEvent{
		domain.NewRegisteredEvent("a", 1, domain.Registration{Name: "a", HealthURL: "http://a/health"}),
		statusEvent("a", 2, domain.StatusUp),
	}))

	assert.Eventually(t, func() bool { return delegate.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestNotificationTrigger_SurvivesErrors(t *testing.T) {
	store := memory.NewStore(0, nil)
	delegate := &recordingNotifier{err: errors.New("unreachable")}
	trigger := NewNotificationTrigger(store, delegate, nil, zap.NewNop())

	trigger.Start()
	require.NoError(t, store.Append(context.Background(), []domain.InstanceEvent{statusEvent("a", 1, domain.StatusUp)}))
	require.NoError(t, store.Append(context.Background(), []domain.InstanceEvent{statusEvent("a", 2, domain.StatusDown)}))

	assert.Eventually(t, func() bool { return delegate.count() == 2 }, time.Second, 10*time.Millisecond)
	trigger.Stop()
}
