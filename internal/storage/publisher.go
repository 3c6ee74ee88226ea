package storage

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

// DefaultSubscriberBuffer is the channel buffer size for each subscriber
const DefaultSubscriberBuffer = 256

// Publisher fans out appended events to subscribers. Slow subscribers
// lose events instead of blocking the writer.
type Publisher struct {
	mu     sync.Mutex
	subs   map[int]chan domain.InstanceEvent
	nextID int
	closed bool
	buffer int
	logger *zap.Logger
}

// NewPublisher creates a new publisher
func NewPublisher(buffer int, logger *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		subs:   make(map[int]chan domain.InstanceEvent),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber
func (p *Publisher) Subscribe() (<-chan domain.InstanceEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan domain.InstanceEvent, p.buffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers events to all current subscribers
func (p *Publisher) Publish(events ...domain.InstanceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ev := range events {
		for id, ch := range p.subs {
			select {
			case ch <- ev:
			default:
				p.logger.Warn("Dropping event for slow subscriber",
					zap.Int("subscriber", id),
					zap.String("instance", ev.Instance.String()),
					zap.String("type", string(ev.Type)))
			}
		}
	}
}

// Subscribers returns the number of active subscribers
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close ends all subscriptions
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
}
