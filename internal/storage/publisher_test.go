package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

func TestPublisher_FanOut(t *testing.T) {
	p := NewPublisher(4, zap.NewNop())

	a, cancelA := p.Subscribe()
	b, cancelB := p.Subscribe()
	defer cancelA()
	defer cancelB()
	assert.Equal(t, 2, p.Subscribers())

	ev := domain.NewDeregisteredEvent("x", 2)
	p.Publish(ev)

	assert.Equal(t, ev.ID, (<-a).ID)
	assert.Equal(t, ev.ID, (<-b).ID)
}

func TestPublisher_CancelClosesChannel(t *testing.T) {
	p := NewPublisher(1, nil)
	ch, cancel := p.Subscribe()

	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, p.Subscribers())
}

func TestPublisher_SlowSubscriberDoesNotBlock(t *testing.T) {
	p := NewPublisher(1, nil)
	ch, cancel := p.Subscribe()
	defer cancel()

	p.Publish(domain.NewDeregisteredEvent("x", 1), domain.NewDeregisteredEvent("x", 2))

	first := <-ch
	assert.Equal(t, int64(1), first.Version)
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestPublisher_SubscribeAfterClose(t *testing.T) {
	p := NewPublisher(1, nil)
	p.Close()
	p.Close()

	ch, cancel := p.Subscribe()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestCheckBatch(t *testing.T) {
	require.NoError(t, CheckBatch(nil, 5))
	assert.NoError(t, CheckBatch([]domain.InstanceEvent{
		domain.NewDeregisteredEvent("x", 6),
		domain.NewDeregisteredEvent("x", 7),
	}, 5))
	assert.ErrorIs(t, CheckBatch([]domain.InstanceEvent{
		domain.NewDeregisteredEvent("x", 6),
		domain.NewDeregisteredEvent("x", 8),
	}, 5), ErrOptimisticLock)
	assert.ErrorIs(t, CheckBatch([]domain.InstanceEvent{
		domain.NewDeregisteredEvent("x", 6),
		domain.NewDeregisteredEvent("y", 7),
	}, 5), ErrInvalidInput)
}
