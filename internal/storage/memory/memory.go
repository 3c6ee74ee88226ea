package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
)

// DefaultMaxLogSize is used when no per-instance log size is configured
const DefaultMaxLogSize = 100

// Store implements an in-memory event store
type Store struct {
	mu         sync.RWMutex
	logs       map[domain.InstanceID][]domain.InstanceEvent
	maxLogSize int
	publisher  *storage.Publisher
}

// NewStore creates a new in-memory event store
func NewStore(maxLogSize int, logger *zap.Logger) *Store {
	if maxLogSize <= 0 {
		maxLogSize = DefaultMaxLogSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logs:       make(map[domain.InstanceID][]domain.InstanceEvent),
		maxLogSize: maxLogSize,
		publisher:  storage.NewPublisher(storage.DefaultSubscriberBuffer, logger.Named("events")),
	}
}

func (s *Store) Append(ctx context.Context, events []domain.InstanceEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := events[0].Instance
	log := s.logs[id]
	var current int64
	if len(log) > 0 {
		current = log[len(log)-1].Version
	}
	if err := storage.CheckBatch(events, current); err != nil {
		return err
	}

	log = append(slices.Clone(log), events...)
	if len(log) > s.maxLogSize {
		log = compact(log)
	}
	s.logs[id] = log

	// published under the lock so subscribers see versions in order
	s.publisher.Publish(events...)
	return nil
}

func (s *Store) Find(ctx context.Context, id domain.InstanceID) ([]domain.InstanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.logs[id]), nil
}

func (s *Store) FindAll(ctx context.Context) ([]domain.InstanceEvent, error) {
	s.mu.RLock()
	all := make([]domain.InstanceEvent, 0)
	for _, log := range s.logs {
		all = append(all, log...)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Version < all[j].Version
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

func (s *Store) Subscribe() (<-chan domain.InstanceEvent, func()) {
	return s.publisher.Subscribe()
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error {
	s.publisher.Close()
	return nil
}

// compact keeps only the latest event of each type, preserving order
func compact(log []domain.InstanceEvent) []domain.InstanceEvent {
	latest := make(map[domain.EventType]int64)
	for _, ev := range log {
		if ev.Version > latest[ev.Type] {
			latest[ev.Type] = ev.Version
		}
	}

	out := make([]domain.InstanceEvent, 0, len(latest))
	for _, ev := range log {
		if latest[ev.Type] == ev.Version {
			out = append(out, ev)
		}
	}
	return out
}
