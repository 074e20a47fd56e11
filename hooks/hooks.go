// Package hooks implements fan-out hooks for engine observability.
//
// The engine publishes lifecycle events (turn start and end, phase
// boundaries, agent runs, skips and failures) to registered subscribers
// through an in-memory Bus. This decouples the scheduler from consumers
// such as streaming sinks, dashboards and test probes.
//
// Subscribers receive events synchronously in the publisher's goroutine.
// Unlike most buses, errors returned by subscribers never halt the
// engine: the engine's publish helper logs and swallows them, so a
// misbehaving observer cannot poison a turn.
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes engine events to registered subscribers in a fan-out
	// pattern. The bus is safe for concurrent Publish, Register and
	// subscription Close operations.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber. Subscribers are invoked synchronously; iteration
		// stops at the first error returned by any subscriber, which is
		// returned to the publisher.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber to the bus and returns a
		// Subscription that can be closed to unregister. Register
		// returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published engine events. Implementations must
	// be safe for concurrent use when registered with multiple buses.
	//
	// HandleEvent errors stop delivery to remaining subscribers for that
	// event; the engine logs and swallows the error, so returning one is
	// only useful to shed load, never to influence the turn.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts an ordinary function to the Subscriber
	// interface, handy for tests and simple observers.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription is an active registration on a Bus. Close removes the
	// subscriber; it is idempotent and safe to call concurrently with
	// Publish.
	Subscription interface {
		// Close removes the subscriber from the bus. Always returns nil
		// to satisfy io.Closer-like interfaces.
		Close() error
	}

	// bus is the in-memory Bus. The subscription pointer keys the
	// registry so removal is O(1).
	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent implements Subscriber by invoking the function.
func (fn SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

// NewBus constructs an in-memory event bus ready for immediate use.
//
//	bus := hooks.NewBus()
//	sub, _ := bus.Register(hooks.SubscriberFunc(func(ctx context.Context, evt hooks.Event) error {
//	    log.Printf("received: %s", evt.Type())
//	    return nil
//	}))
//	defer sub.Close()
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every currently registered subscriber.
// The subscriber set is snapshotted before iteration, so registrations
// and unregistrations during Publish do not affect the current delivery.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber and returns its subscription handle.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Events already in flight may
// still be delivered if Close races a Publish.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
