// Package notify turns instance events into notifications.
package notify

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
)

// Notifier handles an instance event
type Notifier interface {
	Notify(ctx context.Context, event domain.InstanceEvent) error
}

// InstanceFinder looks up the current state of an instance
type InstanceFinder interface {
	Find(ctx context.Context, id domain.InstanceID) (*domain.Instance, error)
}

// statusChanges tracks the last known status per instance and decides
// whether a STATUS_CHANGED event is worth a notification.
type statusChanges struct {
	ignore []statusTransition

	mu   sync.Mutex
	last map[domain.InstanceID]domain.Status
}

type statusTransition struct {
	from string
	to   string
}

// newStatusChanges parses "FROM:TO" rules; "*" matches any status
func newStatusChanges(ignoreChanges []string) *statusChanges {
	rules := make([]statusTransition, 0, len(ignoreChanges))
	for _, rule := range ignoreChanges {
		from, to, ok := strings.Cut(rule, ":")
		if !ok {
			continue
		}
		rules = append(rules, statusTransition{
			from: strings.ToUpper(strings.TrimSpace(from)),
			to:   strings.ToUpper(strings.TrimSpace(to)),
		})
	}
	return &statusChanges{
		ignore: rules,
		last:   make(map[domain.InstanceID]domain.Status),
	}
}

// observe records the event and returns the previous status, whether the event
// is a status change and whether to notify about it
func (s *statusChanges) observe(ev domain.InstanceEvent) (from domain.Status, changed bool, notify bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.last[ev.Instance]
	if !ok {
		from = domain.StatusUnknown
	}

	switch ev.Type {
	case domain.EventStatusChanged:
		if ev.StatusInfo == nil {
			return from, false, false
		}
		to := ev.StatusInfo.Status
		s.last[ev.Instance] = to
		return from, true, !s.ignored(from, to)
	case domain.EventRegistered:
		s.last[ev.Instance] = domain.StatusUnknown
	case domain.EventDeregistered:
		delete(s.last, ev.Instance)
	}
	return from, false, false
}

func (s *statusChanges) ignored(from, to domain.Status) bool {
	for _, rule := range s.ignore {
		if (rule.from == "*" || rule.from == from.String()) && (rule.to == "*" || rule.to == to.String()) {
			return true
		}
	}
	return false
}

// LoggingNotifier logs status changes of instances
type LoggingNotifier struct {
	instances InstanceFinder
	changes   *statusChanges
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewLoggingNotifier creates a notifier that logs status changes.
// ignoreChanges lists "FROM:TO" transitions to stay quiet about. m may be nil.
func NewLoggingNotifier(instances InstanceFinder, ignoreChanges []string, m *metrics.Metrics, logger *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{
		instances: instances,
		changes:   newStatusChanges(ignoreChanges),
		metrics:   m,
		logger:    logger.Named("notifier"),
	}
}

func (n *LoggingNotifier) Notify(ctx context.Context, event domain.InstanceEvent) error {
	from, changed, notify := n.changes.observe(event)
	if !changed {
		return nil
	}
	if !notify {
		n.metrics.RecordNotification(metrics.NotificationIgnored)
		return nil
	}

	name := ""
	if inst, err := n.instances.Find(ctx, event.Instance); err == nil {
		name = inst.Registration.Name
	}

	n.logger.Info("Instance status changed",
		zap.String("name", name),
		zap.String("instance", event.Instance.String()),
		zap.String("from", from.String()),
		zap.String("to", event.StatusInfo.Status.String()),
	)
	n.metrics.RecordNotification(metrics.NotificationSent)
	return nil
}
