package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
)

// DefaultComputeRetries bounds retries of Compute on version conflicts
const DefaultComputeRetries = 10

// ComputeFunc derives the next state of an instance
type ComputeFunc func(inst *domain.Instance) (*domain.Instance, error)

// InstanceRepository loads instances by replaying their events and
// saves them by appending their unsaved events.
type InstanceRepository struct {
	store      storage.EventStore
	maxRetries uint
	logger     *zap.Logger
}

// NewInstanceRepository creates a new event-sourced instance repository
func NewInstanceRepository(store storage.EventStore, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		store:      store,
		maxRetries: DefaultComputeRetries,
		logger:     logger.Named("repository"),
	}
}

// Save appends the instance's unsaved events and returns it without them
func (r *InstanceRepository) Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	if err := r.store.Append(ctx, inst.UnsavedEvents()); err != nil {
		return nil, err
	}
	return inst.ClearUnsavedEvents(), nil
}

// Find returns the instance or storage.ErrNotFound if it has no events
func (r *InstanceRepository) Find(ctx context.Context, id domain.InstanceID) (*domain.Instance, error) {
	events, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return domain.LoadInstance(id, events), nil
}

// FindAll returns every known instance, including deregistered ones, sorted by id
func (r *InstanceRepository) FindAll(ctx context.Context) ([]*domain.Instance, error) {
	events, err := r.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[domain.InstanceID][]domain.InstanceEvent)
	for _, ev := range events {
		byID[ev.Instance] = append(byID[ev.Instance], ev)
	}

	instances := make([]*domain.Instance, 0, len(byID))
	for id, evs := range byID {
		sort.Slice(evs, func(i, j int) bool { return evs[i].Version < evs[j].Version })
		instances = append(instances, domain.LoadInstance(id, evs))
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
	return instances, nil
}

// FindByName returns all known instances registered under name
func (r *InstanceRepository) FindByName(ctx context.Context, name string) ([]*domain.Instance, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	matching := make([]*domain.Instance, 0)
	for _, inst := range all {
		if inst.Registration.Name == name {
			matching = append(matching, inst)
		}
	}
	return matching, nil
}

// Compute loads (or creates) the instance, applies fn and saves the result,
// retrying on version conflicts.
func (r *InstanceRepository) Compute(ctx context.Context, id domain.InstanceID, fn ComputeFunc) (*domain.Instance, error) {
	return r.compute(ctx, id, fn, true)
}

// ComputeIfPresent is like Compute but returns storage.ErrNotFound for unknown instances
func (r *InstanceRepository) ComputeIfPresent(ctx context.Context, id domain.InstanceID, fn ComputeFunc) (*domain.Instance, error) {
	return r.compute(ctx, id, fn, false)
}

func (r *InstanceRepository) compute(ctx context.Context, id domain.InstanceID, fn ComputeFunc, create bool) (*domain.Instance, error) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 10 * time.Millisecond
	retry.MaxInterval = 250 * time.Millisecond

	operation := func() (*domain.Instance, error) {
		current, err := r.Find(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			if !create {
				return nil, backoff.Permanent(err)
			}
			current = domain.NewInstance(id)
		} else if err != nil {
			return nil, backoff.Permanent(err)
		}

		next, err := fn(current)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if next == nil {
			return current, nil
		}

		saved, err := r.Save(ctx, next)
		if errors.Is(err, storage.ErrOptimisticLock) {
			r.logger.Debug("Version conflict, retrying",
				zap.String("instance", id.String()),
				zap.Int64("version", next.Version))
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return saved, nil
	}

	inst, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(retry),
		backoff.WithMaxTries(r.maxRetries),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if errors.Is(err, storage.ErrOptimisticLock) {
			return nil, fmt.Errorf("instance %s: giving up after %d attempts: %w", id, r.maxRetries, err)
		}
		return nil, err
	}
	return inst, nil
}
