package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/storage"
	"github.com/sirosfoundation/go-service-admin/internal/storage/memory"
	"github.com/sirosfoundation/go-service-admin/internal/storage/mongodb"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// Type defines the type of storage backend
type Type string

const (
	// TypeMemory uses in-memory storage (for testing/development)
	TypeMemory Type = "memory"
	// TypeMongoDB uses MongoDB storage (for production)
	TypeMongoDB Type = "mongodb"
)

// New creates the event store based on the configuration
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.EventStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	storageType := Type(cfg.Storage.Type)

	switch storageType {
	case TypeMemory, "":
		// Default to memory if not specified
		return memory.NewStore(cfg.Storage.Memory.MaxLogSizePerInstance, logger), nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
