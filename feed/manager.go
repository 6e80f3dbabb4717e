package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"slidenode/couch"
	"slidenode/deck"
)

// Source is the remote end of the synchronizer: document fetches plus the
// continuous changes feed.
type Source interface {
	FetchDocument(ctx context.Context, id string) (*deck.Document, error)
	OpenChanges(ctx context.Context, docID string, heartbeatMillis int) (io.ReadCloser, error)
}

// Materializer pulls referenced attachments into the local media cache.
type Materializer interface {
	GetOrFetch(ctx context.Context, name, revision string) ([]byte, error)
	Has(name, revision string) bool
}

// Snapshots persists the last known-good document for offline boot.
type Snapshots interface {
	SaveDeckSnapshot(docID, revision, body string) error
	LoadDeckSnapshot(docID string) (body, revision string, err error)
}

// EventEmitter receives the synchronizer's lifecycle events.
type EventEmitter interface {
	EmitDeckUpdated(d *deck.Deck)
	EmitDeckFallback(reason string)
	EmitStoreConnected()
	EmitStoreDisconnected(err error)
}

// Manager keeps the in-memory deck snapshot consistent with the remote
// document. It is the single writer of the snapshot; everyone else reads
// the immutable value through Current.
type Manager struct {
	baseCtx   context.Context // bounds background materialization
	src       Source
	media     Materializer
	snaps     Snapshots
	emitter   EventEmitter
	nodeID    string
	manager   string // manager URL, only for the fallback message
	heartbeat time.Duration
	maxWait   time.Duration

	current atomic.Pointer[deck.Deck]

	mu        sync.Mutex // guards apply
	connected bool
}

// NewManager creates a deck synchronizer for one node document. ctx bounds
// the background attachment fetches kicked off by deck updates; cancelling
// it at shutdown aborts any fetch still in flight.
func NewManager(ctx context.Context, src Source, media Materializer, snaps Snapshots, emitter EventEmitter, nodeID, managerURL string) *Manager {
	m := &Manager{
		baseCtx:   ctx,
		src:       src,
		media:     media,
		snaps:     snaps,
		emitter:   emitter,
		nodeID:    nodeID,
		manager:   managerURL,
		heartbeat: 10 * time.Second,
		maxWait:   30 * time.Second,
	}
	m.current.Store(deck.NewFallback(nodeID, managerURL))
	return m
}

// SetIntervals overrides the changes-feed heartbeat and the reconnect
// backoff cap. Call before Run.
func (m *Manager) SetIntervals(heartbeat, maxBackoff time.Duration) {
	if heartbeat > 0 {
		m.heartbeat = heartbeat
	}
	if maxBackoff > 0 {
		m.maxWait = maxBackoff
	}
}

// Current returns the active immutable deck snapshot. Never nil.
func (m *Manager) Current() *deck.Deck {
	return m.current.Load()
}

// Connected reports whether the changes feed is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// FetchInitial performs the blocking startup fetch. A missing or malformed
// remote document degrades to the persisted snapshot and then to the
// synthetic fallback deck; it never fails — the screen must show something.
func (m *Manager) FetchInitial(ctx context.Context) *deck.Deck {
	doc, err := m.src.FetchDocument(ctx, m.nodeID)
	if err == nil {
		if d, applyErr := m.apply(doc); applyErr == nil {
			return d
		} else {
			log.Printf("feed: initial document unusable: %v", applyErr)
		}
	} else if errors.Is(err, couch.ErrNotFound) {
		log.Printf("feed: node %s has no document yet", m.nodeID)
		m.emitter.EmitDeckFallback("document not found")
		return m.Current()
	} else {
		log.Printf("feed: initial fetch: %v", err)
	}

	// Store unreachable or document unusable: try the persisted snapshot.
	if d := m.loadPersisted(); d != nil {
		log.Printf("feed: resuming persisted deck %s rev %s", d.ID, d.Revision)
		m.current.Store(d)
		m.emitter.EmitDeckUpdated(d)
		go m.materialize(m.baseCtx, d)
		return d
	}

	m.emitter.EmitDeckFallback("store unreachable")
	return m.Current()
}

// Run watches the changes feed until ctx is cancelled. Connection loss is
// retried with capped exponential backoff; the last known-good snapshot
// keeps serving dependents throughout.
func (m *Manager) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := m.watchOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return // clean shutdown
		}

		m.mu.Lock()
		wasConnected := m.connected
		m.connected = false
		m.mu.Unlock()
		if wasConnected {
			log.Printf("feed: changes feed disconnected: %v", err)
			m.emitter.EmitStoreDisconnected(err)
		}

		attempt++
		if !m.backoff(ctx, attempt) {
			return
		}
	}
}

// watchOnce opens a single changes-feed connection and processes entries
// until the stream ends or ctx is cancelled. Returns nil on clean shutdown.
func (m *Manager) watchOnce(ctx context.Context) error {
	body, err := m.src.OpenChanges(ctx, m.nodeID, int(m.heartbeat.Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer body.Close()

	m.mu.Lock()
	wasDisconnected := !m.connected
	m.connected = true
	m.mu.Unlock()
	if wasDisconnected {
		log.Printf("feed: changes feed connected for %s", m.nodeID)
		m.emitter.EmitStoreConnected()
	}

	// Catch up on anything missed while disconnected.
	m.refetch(ctx)

	reader := couch.NewChangesReader(body)
	for {
		ch, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return errors.New("changes feed closed")
			}
			return err
		}
		if ch.ID != m.nodeID {
			continue
		}
		log.Printf("feed: change notified for %s, refetching", m.nodeID)
		m.refetch(ctx)
	}
}

// refetch pulls the full document and applies it if the revision advanced.
func (m *Manager) refetch(ctx context.Context) {
	doc, err := m.src.FetchDocument(ctx, m.nodeID)
	if err != nil {
		log.Printf("feed: refetch: %v", err)
		return
	}
	if _, err := m.apply(doc); err != nil {
		log.Printf("feed: apply: %v", err)
	}
}

// apply converts, revision-gates, publishes and persists a document. Only
// a strictly newer revision replaces the current snapshot; stale revisions
// arriving late are discarded.
func (m *Manager) apply(doc *deck.Document) (*deck.Deck, error) {
	d, err := doc.ToDeck()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	cur := m.current.Load()
	if !cur.Fallback && !deck.RevisionNewer(cur.Revision, d.Revision) {
		m.mu.Unlock()
		return cur, nil
	}
	m.current.Store(d)
	m.mu.Unlock()

	log.Printf("feed: applied deck %s rev %s (%d slides)", d.ID, d.Revision, len(d.Slides))
	m.persist(doc)
	m.emitter.EmitDeckUpdated(d)
	go m.materialize(m.baseCtx, d)
	return d, nil
}

// materialize best-effort fetches every attachment the deck references.
// Deck emission never waits on it; slides whose media is still missing are
// skipped by the renderer until the bytes arrive.
func (m *Manager) materialize(ctx context.Context, d *deck.Deck) {
	for name := range d.ReferencedNames() {
		if m.media.Has(name, d.Revision) {
			continue
		}
		if _, err := m.media.GetOrFetch(ctx, name, d.Revision); err != nil {
			log.Printf("feed: materialize %s: %v", name, err)
		}
	}
}

func (m *Manager) persist(doc *deck.Document) {
	if m.snaps == nil {
		return
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := m.snaps.SaveDeckSnapshot(doc.ID, doc.Rev, string(body)); err != nil {
		log.Printf("feed: persist snapshot: %v", err)
	}
}

func (m *Manager) loadPersisted() *deck.Deck {
	if m.snaps == nil {
		return nil
	}
	body, _, err := m.snaps.LoadDeckSnapshot(m.nodeID)
	if err != nil || body == "" {
		return nil
	}
	d, err := deck.ParseDocument([]byte(body))
	if err != nil {
		return nil
	}
	return d
}

// backoff waits with capped exponential backoff + jitter. Returns false if
// ctx was cancelled during the wait.
func (m *Manager) backoff(ctx context.Context, attempt int) bool {
	base := time.Duration(1<<uint(min(attempt-1, 10))) * time.Second
	if base > m.maxWait {
		base = m.maxWait
	}
	jitter := time.Duration(float64(base) * (0.8 + 0.4*rand.Float64()))

	log.Printf("feed: reconnecting in %v (attempt %d)", jitter.Round(time.Millisecond), attempt)

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
