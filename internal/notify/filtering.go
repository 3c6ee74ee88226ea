package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
)

// FilteringNotifier forwards events to its delegate unless a filter matches.
// Expired filters are purged when notifying and when listing.
type FilteringNotifier struct {
	delegate  Notifier
	instances InstanceFinder
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.RWMutex
	filters map[string]NotificationFilter
	now     func() time.Time
}

// NewFilteringNotifier wraps delegate. m may be nil.
func NewFilteringNotifier(delegate Notifier, instances InstanceFinder, m *metrics.Metrics, logger *zap.Logger) *FilteringNotifier {
	return &FilteringNotifier{
		delegate:  delegate,
		instances: instances,
		metrics:   m,
		logger:    logger.Named("filtering-notifier"),
		filters:   make(map[string]NotificationFilter),
		now:       time.Now,
	}
}

func (n *FilteringNotifier) Notify(ctx context.Context, event domain.InstanceEvent) error {
	n.purgeExpired()

	if n.filtered(ctx, event) {
		n.metrics.RecordNotification(metrics.NotificationFiltered)
		n.logger.Debug("Notification filtered",
			zap.String("instance", event.Instance.String()),
			zap.String("type", string(event.Type)))
		return nil
	}
	return n.delegate.Notify(ctx, event)
}

func (n *FilteringNotifier) filtered(ctx context.Context, event domain.InstanceEvent) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.filters) == 0 {
		return false
	}

	var inst *domain.Instance
	if found, err := n.instances.Find(ctx, event.Instance); err == nil {
		inst = found
	}

	for _, f := range n.filters {
		if f.Filter(event, inst) {
			return true
		}
	}
	return false
}

// AddFilter registers a filter and returns its id
func (n *FilteringNotifier) AddFilter(f NotificationFilter) FilterEntry {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New().String()
	n.filters[id] = f
	return FilterEntry{ID: id, Filter: f}
}

// RemoveFilter removes a filter, reporting whether it existed
func (n *FilteringNotifier) RemoveFilter(id string) (FilterEntry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	f, ok := n.filters[id]
	if !ok {
		return FilterEntry{}, false
	}
	delete(n.filters, id)
	return FilterEntry{ID: id, Filter: f}, true
}

// Filters returns the active filters sorted by id
func (n *FilteringNotifier) Filters() []FilterEntry {
	n.purgeExpired()

	n.mu.RLock()
	defer n.mu.RUnlock()

	entries := make([]FilterEntry, 0, len(n.filters))
	for id, f := range n.filters {
		entries = append(entries, FilterEntry{ID: id, Filter: f})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

func (n *FilteringNotifier) purgeExpired() {
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()

	for id, f := range n.filters {
		if f.IsExpired(now) {
			delete(n.filters, id)
		}
	}
}
