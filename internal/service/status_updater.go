package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
)

// maxHealthBody bounds how much of a health response is read
const maxHealthBody = 1 << 20

// StatusUpdater queries instance health endpoints and records status changes
type StatusUpdater struct {
	repo    *InstanceRepository
	client  *http.Client
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu          sync.Mutex
	lastChecked map[domain.InstanceID]time.Time
}

// NewStatusUpdater creates a new status updater. m may be nil.
func NewStatusUpdater(repo *InstanceRepository, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *StatusUpdater {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatusUpdater{
		repo:        repo,
		client:      &http.Client{Timeout: timeout},
		metrics:     m,
		logger:      logger.Named("status-updater"),
		lastChecked: make(map[domain.InstanceID]time.Time),
	}
}

// UpdateStatus checks one instance and stores its new status if it changed.
// Deregistered instances are skipped.
func (u *StatusUpdater) UpdateStatus(ctx context.Context, id domain.InstanceID) error {
	_, err := u.repo.ComputeIfPresent(ctx, id, func(inst *domain.Instance) (*domain.Instance, error) {
		if !inst.Registered {
			return nil, nil
		}
		info := u.queryStatus(ctx, inst)
		if !info.Equal(inst.StatusInfo) {
			u.logger.Debug("Status changed",
				zap.String("instance", id.String()),
				zap.String("from", inst.StatusInfo.Status.String()),
				zap.String("to", info.Status.String()))
		}
		return inst.WithStatusInfo(info), nil
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	return nil
}

// LastChecked returns when the instance was last queried
func (u *StatusUpdater) LastChecked(id domain.InstanceID) (time.Time, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	t, ok := u.lastChecked[id]
	return t, ok
}

// Forget drops bookkeeping for an instance
func (u *StatusUpdater) Forget(id domain.InstanceID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.lastChecked, id)
}

func (u *StatusUpdater) markChecked(id domain.InstanceID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastChecked[id] = time.Now()
}

func (u *StatusUpdater) queryStatus(ctx context.Context, inst *domain.Instance) domain.StatusInfo {
	start := time.Now()
	info := u.fetchStatus(ctx, inst.Registration.HealthURL)
	u.markChecked(inst.ID)
	u.metrics.RecordStatusCheck(info.Status, time.Since(start))
	return info
}

func (u *StatusUpdater) fetchStatus(ctx context.Context, healthURL string) domain.StatusInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return offline(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.Debug("Health request failed", zap.String("url", healthURL), zap.Error(err))
		return offline(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return offline(err)
	}

	return convertStatusInfo(resp.StatusCode, http.StatusText(resp.StatusCode), body)
}

// convertStatusInfo maps a health response to a StatusInfo:
// a "status" field wins, otherwise 2xx is UP and anything else DOWN.
func convertStatusInfo(code int, reason string, body []byte) domain.StatusInfo {
	var payload map[string]any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}

	if status, ok := payload["status"].(string); ok {
		return domain.NewStatusInfo(status, statusDetails(payload))
	}

	if code >= 200 && code < 300 {
		return domain.StatusInfoUp(nil)
	}

	details := map[string]any{
		"status": code,
		"error":  reason,
	}
	for k, v := range payload {
		details[k] = v
	}
	return domain.StatusInfoDown(details)
}

func statusDetails(payload map[string]any) map[string]any {
	for _, key := range []string{"details", "components"} {
		if d, ok := payload[key].(map[string]any); ok {
			return d
		}
	}
	details := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != "status" {
			details[k] = v
		}
	}
	return details
}

func offline(err error) domain.StatusInfo {
	return domain.StatusInfoOffline(map[string]any{
		"message":   err.Error(),
		"exception": fmt.Sprintf("%T", err),
	})
}
