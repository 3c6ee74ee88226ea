package storage

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

// Common errors
var (
	ErrNotFound       = errors.New("not found")
	ErrOptimisticLock = errors.New("optimistic lock: version conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDatabase       = errors.New("database error")
)

// EventStore is the append-only log of instance events
type EventStore interface {
	// Append stores events of a single instance. The first event's version
	// must be exactly one above the stored version, otherwise ErrOptimisticLock.
	Append(ctx context.Context, events []domain.InstanceEvent) error

	// Find returns the events of one instance ordered by version (empty if unknown)
	Find(ctx context.Context, id domain.InstanceID) ([]domain.InstanceEvent, error)

	// FindAll returns all events ordered by timestamp
	FindAll(ctx context.Context) ([]domain.InstanceEvent, error)

	// Subscribe returns a channel receiving every event appended after the call,
	// and a function that ends the subscription
	Subscribe() (<-chan domain.InstanceEvent, func())

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error

	// Close closes the storage and ends all subscriptions
	Close() error
}

// CheckBatch validates that events belong to one instance and carry
// consecutive versions starting right after current.
func CheckBatch(events []domain.InstanceEvent, current int64) error {
	if len(events) == 0 {
		return nil
	}
	id := events[0].Instance
	for i, ev := range events {
		if ev.Instance != id {
			return ErrInvalidInput
		}
		if ev.Version != current+int64(i)+1 {
			return ErrOptimisticLock
		}
	}
	return nil
}
