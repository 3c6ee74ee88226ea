package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// maxConcurrentChecks bounds parallel health requests in a periodic pass
const maxConcurrentChecks = 8

// StatusUpdateTrigger checks instances right after they register and
// periodically re-checks instances whose status is older than the lifetime.
type StatusUpdateTrigger struct {
	config   config.MonitorConfig
	store    storage.EventStore
	registry *InstanceRegistry
	updater  *StatusUpdater
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatusUpdateTrigger creates a new trigger
func NewStatusUpdateTrigger(cfg config.MonitorConfig, store storage.EventStore, registry *InstanceRegistry, updater *StatusUpdater, logger *zap.Logger) *StatusUpdateTrigger {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.StatusLifetime <= 0 {
		cfg.StatusLifetime = cfg.Interval
	}
	return &StatusUpdateTrigger{
		config:   cfg,
		store:    store,
		registry: registry,
		updater:  updater,
		logger:   logger.Named("status-trigger"),
	}
}

// Start begins the trigger in the background
func (t *StatusUpdateTrigger) Start() {
	if !t.config.Enabled {
		t.logger.Info("Status monitoring disabled")
		return
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	events, unsubscribe := t.store.Subscribe()

	t.wg.Add(2)
	go t.listen(events, unsubscribe)
	go t.run()

	t.logger.Info("Status monitoring started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("status_lifetime", t.config.StatusLifetime),
	)
}

// Stop gracefully stops the trigger
func (t *StatusUpdateTrigger) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.logger.Info("Status monitoring stopped")
}

func (t *StatusUpdateTrigger) listen(events <-chan domain.InstanceEvent, unsubscribe func()) {
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
			t.handleEvent(ev)
		}
	}
}

func (t *StatusUpdateTrigger) handleEvent(ev domain.InstanceEvent) {
	switch ev.Type {
	case domain.EventRegistered, domain.EventRegistrationUpdated:
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.update(ev.Instance)
		}()
	case domain.EventDeregistered:
		t.updater.Forget(ev.Instance)
	}
}

func (t *StatusUpdateTrigger) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.RunOnce(t.ctx); err != nil && t.ctx.Err() == nil {
				t.logger.Error("Failed to check instance statuses", zap.Error(err))
			}
		}
	}
}

func (t *StatusUpdateTrigger) update(id domain.InstanceID) {
	ctx, cancel := context.WithTimeout(t.ctx, t.config.Interval+t.updaterTimeout())
	defer cancel()

	if err := t.updater.UpdateStatus(ctx, id); err != nil {
		t.logger.Warn("Status update failed", zap.String("instance", id.String()), zap.Error(err))
	}
}

func (t *StatusUpdateTrigger) updaterTimeout() time.Duration {
	return t.updater.client.Timeout
}

// RunOnce checks every registered instance whose status is stale
func (t *StatusUpdateTrigger) RunOnce(ctx context.Context) error {
	instances, err := t.registry.GetInstances(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)

	now := time.Now()
	for _, inst := range instances {
		if last, ok := t.updater.LastChecked(inst.ID); ok && now.Sub(last) < t.config.StatusLifetime {
			continue
		}
		id := inst.ID
		g.Go(func() error {
			if err := t.updater.UpdateStatus(gctx, id); err != nil {
				t.logger.Warn("Status update failed", zap.String("instance", id.String()), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
