package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
	"github.com/sirosfoundation/go-service-admin/internal/storage"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

const eventsCollection = "instance_events"

// Store implements a MongoDB-backed event store.
// Subscriptions only see events appended through this process.
type Store struct {
	client    *mongo.Client
	database  *mongo.Database
	events    *mongo.Collection
	cfg       *config.MongoDBConfig
	publisher *storage.Publisher
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *config.MongoDBConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)
	s := &Store{
		client:    client,
		database:  database,
		events:    database.Collection(eventsCollection),
		cfg:       cfg,
		publisher: storage.NewPublisher(storage.DefaultSubscriberBuffer, logger.Named("events")),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// (instance, version) is unique: concurrent writers of the same version collide here
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "instance", Value: 1}, {Key: "version", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, events []domain.InstanceEvent) error {
	if len(events) == 0 {
		return nil
	}

	current, err := s.currentVersion(ctx, events[0].Instance)
	if err != nil {
		return err
	}
	if err := storage.CheckBatch(events, current); err != nil {
		return err
	}

	docs := make([]interface{}, len(events))
	for i := range events {
		docs[i] = events[i]
	}

	if _, err := s.events.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrOptimisticLock
		}
		return fmt.Errorf("%w: failed to append events: %v", storage.ErrDatabase, err)
	}

	s.publisher.Publish(events...)
	return nil
}

func (s *Store) currentVersion(ctx context.Context, id domain.InstanceID) (int64, error) {
	var last domain.InstanceEvent
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	err := s.events.FindOne(ctx, bson.M{"instance": id}, opts).Decode(&last)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: failed to read current version: %v", storage.ErrDatabase, err)
	}
	return last.Version, nil
}

func (s *Store) Find(ctx context.Context, id domain.InstanceID) ([]domain.InstanceEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	return s.find(ctx, bson.M{"instance": id}, opts)
}

func (s *Store) FindAll(ctx context.Context) ([]domain.InstanceEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "version", Value: 1}})
	return s.find(ctx, bson.M{}, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.InstanceEvent, error) {
	cursor, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find events: %v", storage.ErrDatabase, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	events := make([]domain.InstanceEvent, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("%w: failed to decode events: %v", storage.ErrDatabase, err)
	}
	return events, nil
}

func (s *Store) Subscribe() (<-chan domain.InstanceEvent, func()) {
	return s.publisher.Subscribe()
}

func (s *Store) Close() error {
	s.publisher.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
