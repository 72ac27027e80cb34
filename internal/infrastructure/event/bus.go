package event

import (
	"context"
	"errors"
	"sync"

	"github.com/campaignlens/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned when publishing after Stop.
var ErrBusStopped = errors.New("event bus stopped")

const defaultQueueSize = 256

// InMemoryEventBus dispatches domain events to subscribed handlers. Before
// Start, Publish dispatches synchronously on the caller's goroutine. After
// Start, events are queued and dispatched by a single worker so publishers
// (the analysis pipeline) never block on slow handlers such as the Kafka
// forwarder. Stop drains the queue.
type InMemoryEventBus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	wildcard []shared.EventHandler

	queue   chan queued
	state   sync.Mutex
	running bool
	stopped bool
	done    chan struct{}
}

type queued struct {
	ctx   context.Context
	event shared.DomainEvent
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		logger:   logger.Named("event_bus"),
		handlers: make(map[string][]shared.EventHandler),
	}
}

// Subscribe registers handler for eventTypes, or for the types the handler
// declares when none are given. A handler with no types receives everything.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, handler)
		return
	}
	for _, t := range eventTypes {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Unsubscribe removes handler from every event type
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wildcard = without(b.wildcard, handler)
	for t, hs := range b.handlers {
		if hs = without(hs, handler); len(hs) == 0 {
			delete(b.handlers, t)
		} else {
			b.handlers[t] = hs
		}
	}
}

func without(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	out := handlers[:0:0]
	for _, h := range handlers {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]shared.EventHandler, 0, len(b.handlers[eventType])+len(b.wildcard))
	out = append(out, b.handlers[eventType]...)
	return append(out, b.wildcard...)
}

// Publish delivers events to their handlers. Handler failures are logged
// and never returned to the publisher.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.state.Lock()
	defer b.state.Unlock()

	if b.stopped {
		return ErrBusStopped
	}
	for _, e := range events {
		if !b.running {
			b.dispatch(ctx, e)
			continue
		}
		select {
		case b.queue <- queued{ctx: context.WithoutCancel(ctx), event: e}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Start switches the bus to queued dispatch.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.state.Lock()
	defer b.state.Unlock()

	if b.running || b.stopped {
		return nil
	}
	b.queue = make(chan queued, defaultQueueSize)
	b.done = make(chan struct{})
	b.running = true

	go func() {
		defer close(b.done)
		for q := range b.queue {
			b.dispatch(q.ctx, q.event)
		}
	}()

	b.logger.Info("event bus started")
	return nil
}

// Stop drains queued events and stops the worker. Further publishes fail.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.state.Lock()
	wasRunning := b.running
	b.running = false
	b.stopped = true
	if wasRunning {
		close(b.queue)
	}
	b.state.Unlock()

	if !wasRunning {
		return nil
	}
	select {
	case <-b.done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, e shared.DomainEvent) {
	for _, h := range b.handlersFor(e.EventType()) {
		if err := b.safeHandle(ctx, h, e); err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("event_type", e.EventType()),
				zap.String("event_id", e.EventID().String()),
				zap.String("aggregate_id", e.AggregateID()),
				zap.Error(err),
			)
		}
	}
}

func (b *InMemoryEventBus) safeHandle(ctx context.Context, h shared.EventHandler, e shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", e.EventType()),
				zap.Any("panic", r),
			)
		}
	}()
	return h.Handle(ctx, e)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
