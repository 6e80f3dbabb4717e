package engine

import "slidenode/deck"

// feedEmitter adapts the engine's EventBus to the feed.EventEmitter
// interface.
type feedEmitter struct {
	bus *EventBus
}

func (e *feedEmitter) EmitDeckUpdated(d *deck.Deck) {
	e.bus.Emit(Event{Type: EventDeckUpdated, Payload: DeckUpdatedEvent{
		DocID: d.ID, Revision: d.Revision, Slides: len(d.Slides), Fallback: d.Fallback,
	}})
}

func (e *feedEmitter) EmitDeckFallback(reason string) {
	e.bus.Emit(Event{Type: EventDeckFallback, Payload: DeckUpdatedEvent{Fallback: true}})
}

func (e *feedEmitter) EmitStoreConnected() {
	e.bus.Emit(Event{Type: EventStoreConnected, Payload: StoreEvent{Connected: true}})
}

func (e *feedEmitter) EmitStoreDisconnected(err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	e.bus.Emit(Event{Type: EventStoreDisconnected, Payload: StoreEvent{Connected: false, Error: errStr}})
}

// renderEmitter adapts the EventBus to the render.EventEmitter interface.
type renderEmitter struct {
	bus *EventBus
}

func (e *renderEmitter) EmitSlideChanged(name, key string, index int, revision string) {
	e.bus.Emit(Event{Type: EventSlideChanged, Payload: SlideChangedEvent{
		SlideName: name, SlideKey: key, Index: index, Revision: revision,
	}})
}

func (e *renderEmitter) EmitSlideSkipped(name, reason string) {
	e.bus.Emit(Event{Type: EventSlideSkipped, Payload: SlideSkippedEvent{
		SlideName: name, Reason: reason,
	}})
}

// cacheEmitter adapts the EventBus to the cache.EventEmitter interface.
type cacheEmitter struct {
	bus *EventBus
}

func (e *cacheEmitter) EmitMediaCached(name string, size int) {
	e.bus.Emit(Event{Type: EventMediaCached, Payload: MediaCachedEvent{Name: name, Size: size}})
}

// captureEmitter adapts the EventBus to the capture.EventEmitter interface.
type captureEmitter struct {
	bus *EventBus
}

func (e *captureEmitter) EmitCaptureFailed(url string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	e.bus.Emit(Event{Type: EventCaptureFailed, Payload: CaptureFailedEvent{URL: url, Error: errStr}})
}

// reaperEmitter adapts the EventBus to the reaper.EventEmitter interface.
type reaperEmitter struct {
	bus *EventBus
}

func (e *reaperEmitter) EmitMediaEvicted(name string) {
	e.bus.Emit(Event{Type: EventMediaEvicted, Payload: MediaEvictedEvent{Name: name}})
}
