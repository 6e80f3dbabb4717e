package engine

import (
	"sync"
	"time"
)

// SubscriberID uniquely identifies an EventBus subscriber.
type SubscriberID uint64

// SubscriberFunc is a callback invoked when an event is emitted.
type SubscriberFunc func(Event)

type subscriber struct {
	id SubscriberID
	fn SubscriberFunc
}

// EventBus provides synchronous, typed event dispatch. Subscribers are
// called on the emitting goroutine, so handlers must not block; anything
// slow hands off to its own worker.
//
// Typed subscriptions are bucketed per event type, so an Emit only touches
// the subscribers that asked for that type. Catch-all subscribers see
// every event, before the typed ones, each group in registration order.
type EventBus struct {
	mu     sync.RWMutex
	nextID SubscriberID
	all    []subscriber
	typed  map[EventType][]subscriber
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{typed: make(map[EventType][]subscriber)}
}

// Subscribe registers a callback for all event types.
func (eb *EventBus) Subscribe(fn SubscriberFunc) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.all = append(eb.all, subscriber{id: eb.nextID, fn: fn})
	return eb.nextID
}

// SubscribeTypes registers a callback only for the given event types.
func (eb *EventBus) SubscribeTypes(fn SubscriberFunc, types ...EventType) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	s := subscriber{id: eb.nextID, fn: fn}
	for _, t := range types {
		eb.typed[t] = append(eb.typed[t], s)
	}
	return eb.nextID
}

// Unsubscribe removes a subscriber by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.all = without(eb.all, id)
	for t, subs := range eb.typed {
		eb.typed[t] = without(subs, id)
	}
}

func without(subs []subscriber, id SubscriberID) []subscriber {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Emit dispatches an event synchronously to all matching subscribers.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	eb.mu.RLock()
	targets := make([]subscriber, 0, len(eb.all)+len(eb.typed[evt.Type]))
	targets = append(targets, eb.all...)
	targets = append(targets, eb.typed[evt.Type]...)
	eb.mu.RUnlock()

	for _, s := range targets {
		s.fn(evt)
	}
}
