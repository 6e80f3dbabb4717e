package engine

import "time"

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Deck events
	EventDeckUpdated EventType = iota + 1
	EventDeckFallback

	// Render events
	EventSlideChanged
	EventSlideSkipped

	// Media events
	EventMediaCached
	EventMediaEvicted
	EventCaptureFailed

	// Store connectivity events
	EventStoreConnected
	EventStoreDisconnected
)

// Event is the envelope dispatched by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// DeckUpdatedEvent is emitted when a new deck snapshot is applied.
type DeckUpdatedEvent struct {
	DocID    string
	Revision string
	Slides   int
	Fallback bool
}

// SlideChangedEvent is emitted each time the renderer advances to a new
// slide.
type SlideChangedEvent struct {
	SlideName string
	SlideKey  string // attachment key or URL, what goes upstream
	Index     int
	Revision  string
}

// SlideSkippedEvent is emitted when a slide is dropped from the cycle
// because its media is unavailable.
type SlideSkippedEvent struct {
	SlideName string
	Reason    string
}

// MediaCachedEvent is emitted after an attachment lands in the cache.
type MediaCachedEvent struct {
	Name string
	Size int
}

// MediaEvictedEvent is emitted when the reaper drops a cached attachment.
type MediaEvictedEvent struct {
	Name string
}

// CaptureFailedEvent is emitted when a website capture exhausts its retries.
type CaptureFailedEvent struct {
	URL   string
	Error string
}

// StoreEvent reports change-feed connectivity transitions.
type StoreEvent struct {
	Connected bool
	Error     string
}
