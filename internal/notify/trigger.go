package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
)

// notifyTimeout bounds a single notification
const notifyTimeout = 30 * time.Second

// NotificationTrigger feeds events from the event store to a notifier
type NotificationTrigger struct {
	store    storage.EventStore
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotificationTrigger creates a new trigger. m may be nil.
func NewNotificationTrigger(store storage.EventStore, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *NotificationTrigger {
	return &NotificationTrigger{
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logger.Named("notification-trigger"),
	}
}

// Start subscribes to the event store and notifies in the background
func (t *NotificationTrigger) Start() {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	events, unsubscribe := t.store.Subscribe()

	t.wg.Add(1)
	go t.run(events, unsubscribe)

	t.logger.Info("Notification trigger started")
}

// Stop gracefully stops the trigger
func (t *NotificationTrigger) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.logger.Info("Notification trigger stopped")
}

func (t *NotificationTrigger) run(events <-chan domain.InstanceEvent, unsubscribe func()) {
	defer t.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-t.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.handle(ev)
		}
	}
}

func (t *NotificationTrigger) handle(ev domain.InstanceEvent) {
	ctx, cancel := context.WithTimeout(t.ctx, notifyTimeout)
	defer cancel()

	if err := t.notifier.Notify(ctx, ev); err != nil {
		t.metrics.RecordNotification(metrics.NotificationFailed)
		t.logger.Error("Couldn't notify",
			zap.String("instance", ev.Instance.String()),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}
