package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/notify"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// Services aggregates the admin server services
type Services struct {
	Store         storage.EventStore
	Repository    *InstanceRepository
	Registry      *InstanceRegistry
	StatusUpdater *StatusUpdater
	StatusTrigger *StatusUpdateTrigger
	// Notifier is nil when notifications are disabled
	Notifier            *notify.FilteringNotifier
	NotificationTrigger *notify.NotificationTrigger
	Sanitizer           *domain.Sanitizer
	Metrics             *metrics.Metrics
}

// NewServices wires the services on top of an event store. m may be nil.
func NewServices(store storage.EventStore, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Services, error) {
	sanitizer, err := domain.NewSanitizer(cfg.Server.MetadataKeysToSanitize)
	if err != nil {
		return nil, fmt.Errorf("failed to compile metadata sanitize patterns: %w", err)
	}

	repo := NewInstanceRepository(store, logger)
	registry := NewInstanceRegistry(repo, HashingIDGenerator{}, m, logger)
	updater := NewStatusUpdater(repo, cfg.Monitor.Timeout, m, logger)

	s := &Services{
		Store:         store,
		Repository:    repo,
		Registry:      registry,
		StatusUpdater: updater,
		StatusTrigger: NewStatusUpdateTrigger(cfg.Monitor, store, registry, updater, logger),
		Sanitizer:     sanitizer,
		Metrics:       m,
	}

	if cfg.Notify.Enabled {
		logging := notify.NewLoggingNotifier(repo, cfg.Notify.IgnoreChanges, m, logger)
		s.Notifier = notify.NewFilteringNotifier(logging, repo, m, logger)
		s.NotificationTrigger = notify.NewNotificationTrigger(store, s.Notifier, m, logger)
	}

	return s, nil
}

// Start starts background workers
func (s *Services) Start() {
	if s.NotificationTrigger != nil {
		s.NotificationTrigger.Start()
	}
	if s.StatusTrigger != nil {
		s.StatusTrigger.Start()
	}
}

// Stop gracefully stops background workers
func (s *Services) Stop() {
	if s.StatusTrigger != nil {
		s.StatusTrigger.Stop()
	}
	if s.NotificationTrigger != nil {
		s.NotificationTrigger.Stop()
	}
}
