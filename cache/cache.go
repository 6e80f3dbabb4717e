package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"slidenode/store"
)

// ErrMiss signals that an attachment is not available locally and could not
// be fetched right now. Callers treat the slide as unavailable for this
// cycle; it is not a hard failure.
var ErrMiss = errors.New("cache: media unavailable")

// Fetcher pulls attachment bytes from the remote store.
type Fetcher interface {
	FetchAttachment(ctx context.Context, docID, name string) ([]byte, string, error)
}

// EventEmitter receives cache lifecycle notifications.
type EventEmitter interface {
	EmitMediaCached(name string, size int)
}

// Cache is the node-local media store: raw bytes on disk keyed by slide
// name, with a SQLite index carrying content type and the deck revision the
// bytes were fetched under. Entries are keyed by name, never content hash;
// new bytes under the same name overwrite.
type Cache struct {
	dir     string
	db      *store.DB
	fetcher Fetcher
	docID   string

	retries    int
	retryDelay time.Duration
	events     EventEmitter

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	data []byte
	err  error
}

// New creates a media cache rooted at dir. The directory is created if
// missing.
func New(dir string, db *store.DB, fetcher Fetcher, docID string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Cache{
		dir:        dir,
		db:         db,
		fetcher:    fetcher,
		docID:      docID,
		retries:    3,
		retryDelay: 2 * time.Second,
		inflight:   make(map[string]*flight),
	}, nil
}

// SetEvents installs an event emitter. Call before the cache is shared
// across goroutines.
func (c *Cache) SetEvents(e EventEmitter) {
	c.events = e
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, filepath.Base(name))
}

// Path returns the on-disk location of a cached attachment. The file only
// exists after a successful GetOrFetch.
func (c *Cache) Path(name string) string {
	return c.path(name)
}

// Has reports whether bytes for name are present on disk and indexed at the
// given revision. An empty revision matches any indexed entry.
func (c *Cache) Has(name, revision string) bool {
	a, err := c.db.GetAttachment(name)
	if err != nil || a == nil {
		return false
	}
	if revision != "" && a.Revision != revision {
		return false
	}
	_, err = os.Stat(c.path(name))
	return err == nil
}

// GetOrFetch returns the cached bytes for name, fetching them from the
// store when absent or recorded under an older revision. Concurrent calls
// for the same name share a single fetch. After the bounded retries are
// exhausted it returns stale bytes if any exist, otherwise ErrMiss.
func (c *Cache) GetOrFetch(ctx context.Context, name, revision string) ([]byte, error) {
	if c.Has(name, revision) {
		if data, err := os.ReadFile(c.path(name)); err == nil {
			return data, nil
		}
	}

	c.mu.Lock()
	if f, ok := c.inflight[name]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.data, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inflight[name] = f
	c.mu.Unlock()

	f.data, f.err = c.fetch(ctx, name, revision)
	close(f.done)

	c.mu.Lock()
	delete(c.inflight, name)
	c.mu.Unlock()

	return f.data, f.err
}

func (c *Cache) fetch(ctx context.Context, name, revision string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		data, ctype, err := c.fetcher.FetchAttachment(ctx, c.docID, name)
		if err == nil {
			if err := c.put(name, ctype, revision, data); err != nil {
				log.Printf("cache: store %s: %v", name, err)
			}
			if c.events != nil {
				c.events.EmitMediaCached(name, len(data))
			}
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.retries {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// Stale bytes beat a blank slide.
	if c.Has(name, "") {
		if data, err := os.ReadFile(c.path(name)); err == nil {
			log.Printf("cache: serving stale copy of %s after fetch failure: %v", name, lastErr)
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrMiss, name, lastErr)
}

// put writes bytes to disk atomically and records the index entry.
// Last writer wins for a given name.
func (c *Cache) put(name, contentType, revision string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".fetch-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, c.path(name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return c.db.UpsertAttachment(name, contentType, int64(len(data)), revision)
}

// Evict removes a cached attachment and its index entry. Idempotent.
func (c *Cache) Evict(name string) error {
	if err := os.Remove(c.path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return c.db.DeleteAttachment(name)
}

// Names returns every cached attachment name.
func (c *Cache) Names() ([]string, error) {
	return c.db.ListAttachmentNames()
}
