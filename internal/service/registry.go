package service

import (
	"context"
	"crypto/sha1" //nolint:gosec // ids only need to be stable, not collision resistant
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/metrics"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
)

// ErrInvalidRegistration is returned for registrations failing validation
var ErrInvalidRegistration = domain.ErrInvalidRegistration

// IDGenerator derives the instance id for a registration
type IDGenerator interface {
	GenerateID(reg domain.Registration) domain.InstanceID
}

// HashingIDGenerator derives ids from the health URL, so an instance
// re-registering after a restart keeps its id.
type HashingIDGenerator struct{}

// GenerateID returns the first 12 hex characters of the SHA-1 of the health URL
func (HashingIDGenerator) GenerateID(reg domain.Registration) domain.InstanceID {
	sum := sha1.Sum([]byte(reg.HealthURL)) //nolint:gosec
	return domain.InstanceID(hex.EncodeToString(sum[:])[:12])
}

// InstanceRegistry registers and deregisters instances
type InstanceRegistry struct {
	repo    *InstanceRepository
	ids     IDGenerator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewInstanceRegistry creates a new registry. m may be nil.
func NewInstanceRegistry(repo *InstanceRepository, ids IDGenerator, m *metrics.Metrics, logger *zap.Logger) *InstanceRegistry {
	if ids == nil {
		ids = HashingIDGenerator{}
	}
	return &InstanceRegistry{
		repo:    repo,
		ids:     ids,
		metrics: m,
		logger:  logger.Named("registry"),
	}
}

// Register validates and stores the registration, returning the instance id
func (r *InstanceRegistry) Register(ctx context.Context, reg domain.Registration) (domain.InstanceID, error) {
	if err := reg.Validate(); err != nil {
		r.metrics.RecordRegistration(metrics.RegistrationRejected)
		return "", err
	}

	id := r.ids.GenerateID(reg)
	_, err := r.repo.Compute(ctx, id, func(inst *domain.Instance) (*domain.Instance, error) {
		return inst.Register(reg), nil
	})
	if err != nil {
		r.metrics.RecordRegistration(metrics.RegistrationFailed)
		return "", fmt.Errorf("failed to register instance: %w", err)
	}

	r.metrics.RecordRegistration(metrics.RegistrationAccepted)
	r.logger.Debug("Instance registered",
		zap.String("id", id.String()),
		zap.String("name", reg.Name),
		zap.String("health_url", reg.HealthURL))
	return id, nil
}

// Deregister marks the instance as deregistered. Unknown or already
// deregistered instances yield storage.ErrNotFound.
func (r *InstanceRegistry) Deregister(ctx context.Context, id domain.InstanceID) error {
	_, err := r.repo.ComputeIfPresent(ctx, id, func(inst *domain.Instance) (*domain.Instance, error) {
		if !inst.Registered {
			return nil, storage.ErrNotFound
		}
		return inst.Deregister(), nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to deregister instance: %w", err)
	}

	r.metrics.RecordDeregistration()
	r.logger.Debug("Instance deregistered", zap.String("id", id.String()))
	return nil
}

// GetInstances returns all registered instances
func (r *InstanceRegistry) GetInstances(ctx context.Context) ([]*domain.Instance, error) {
	all, err := r.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return registeredOnly(all), nil
}

// GetInstancesByName returns the registered instances of one application
func (r *InstanceRegistry) GetInstancesByName(ctx context.Context, name string) ([]*domain.Instance, error) {
	all, err := r.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return registeredOnly(all), nil
}

// GetInstance returns a registered instance or storage.ErrNotFound
func (r *InstanceRegistry) GetInstance(ctx context.Context, id domain.InstanceID) (*domain.Instance, error) {
	inst, err := r.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inst.Registered {
		return nil, storage.ErrNotFound
	}
	return inst, nil
}

// Repository returns the underlying repository
func (r *InstanceRegistry) Repository() *InstanceRepository {
	return r.repo
}

func registeredOnly(instances []*domain.Instance) []*domain.Instance {
	out := make([]*domain.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Registered {
			out = append(out, inst)
		}
	}
	return out
}
