// Package reaper garbage-collects cached media. It runs on a slow cadence,
// compares the cache's key set against the current deck snapshot, and
// evicts everything unreferenced. With remote cleanup enabled it also
// deletes unreferenced attachments from the node's document upstream, the
// way an operator-removed slide eventually disappears everywhere.
package reaper

import (
	"context"
	"log"
	"time"

	"slidenode/deck"
)

// DeckSource hands out the current deck snapshot. Satisfied by
// feed.Manager.
type DeckSource interface {
	Current() *deck.Deck
}

// Store is the local cache side. Satisfied by cache.Cache.
type Store interface {
	Names() ([]string, error)
	Evict(name string) error
}

// Remote is the upstream document side used for remote cleanup. Satisfied
// by couch.Client.
type Remote interface {
	FetchDocument(ctx context.Context, id string) (*deck.Document, error)
	DeleteAttachment(ctx context.Context, docID, name, rev string) (string, error)
}

// EventEmitter receives eviction notices.
type EventEmitter interface {
	EmitMediaEvicted(name string)
}

// Reaper trims local and remote media down to what the current deck
// references.
type Reaper struct {
	source   DeckSource
	store    Store
	remote   Remote // nil disables remote cleanup
	emitter  EventEmitter
	docID    string
	interval time.Duration
}

func New(source DeckSource, store Store, remote Remote, emitter EventEmitter, docID string, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Reaper{
		source:   source,
		store:    store,
		remote:   remote,
		emitter:  emitter,
		docID:    docID,
		interval: interval,
	}
}

// Run performs a pass every interval until ctx is done. The first pass
// waits a full interval so a booting node finishes materializing before
// anything is judged unreferenced.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}

// Pass runs one cleanup round. A fallback snapshot references nothing but
// also proves nothing about the real deck, so it skips the pass entirely
// rather than evicting a whole cache during an outage.
func (r *Reaper) Pass(ctx context.Context) {
	d := r.source.Current()
	if d == nil || d.Fallback {
		return
	}
	referenced := d.ReferencedNames()
	r.local(referenced)
	if r.remote != nil {
		r.removeRemote(ctx)
	}
}

func (r *Reaper) local(referenced map[string]struct{}) {
	names, err := r.store.Names()
	if err != nil {
		log.Printf("reaper: listing cache: %v", err)
		return
	}
	for _, name := range names {
		if _, ok := referenced[name]; ok {
			continue
		}
		if err := r.store.Evict(name); err != nil {
			log.Printf("reaper: evicting %s: %v", name, err)
			continue
		}
		log.Printf("reaper: evicted %s", name)
		if r.emitter != nil {
			r.emitter.EmitMediaEvicted(name)
		}
	}
}

// removeRemote deletes attachments on the node's document that no slide
// references anymore. Every delete bumps the document revision, so the new
// rev is chained into the next delete. The document is re-fetched here
// rather than trusting the snapshot: its attachment stubs are the source
// of truth for what exists upstream.
func (r *Reaper) removeRemote(ctx context.Context) {
	doc, err := r.remote.FetchDocument(ctx, r.docID)
	if err != nil {
		log.Printf("reaper: remote cleanup fetch: %v", err)
		return
	}
	referenced := doc.ReferencedAttachments()

	rev := doc.Rev
	for name := range doc.Attachments {
		if _, ok := referenced[name]; ok {
			continue
		}
		newRev, err := r.remote.DeleteAttachment(ctx, r.docID, name, rev)
		if err != nil {
			log.Printf("reaper: deleting remote %s: %v", name, err)
			return
		}
		log.Printf("reaper: deleted remote attachment %s", name)
		rev = newRev
	}
}
