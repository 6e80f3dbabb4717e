package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slidenode/store"
)

// --- Mock fetcher ---

type mockFetcher struct {
	mu      sync.Mutex
	calls   int32
	data    map[string][]byte
	failAll bool
	delay   time.Duration
}

func (m *mockFetcher) FetchAttachment(ctx context.Context, docID, name string) ([]byte, string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, "", fmt.Errorf("connection refused")
	}
	data, ok := m.data[name]
	if !ok {
		return nil, "", fmt.Errorf("not found")
	}
	return data, "application/octet-stream", nil
}

func testCache(t *testing.T, f Fetcher) *Cache {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	c, err := New(filepath.Join(dir, "media"), db, f, "node-1")
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	c.retryDelay = time.Millisecond
	return c
}

func TestGetOrFetch_Idempotent(t *testing.T) {
	f := &mockFetcher{data: map[string][]byte{"x.jpg": []byte("bytes-v1")}}
	c := testCache(t, f)

	a, err := c.GetOrFetch(context.Background(), "x.jpg", "1-a")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	b, err := c.GetOrFetch(context.Background(), "x.jpg", "1-a")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if string(a) != "bytes-v1" || string(b) != "bytes-v1" {
		t.Errorf("bytes = %q, %q", a, b)
	}
	if n := atomic.LoadInt32(&f.calls); n != 1 {
		t.Errorf("network fetches = %d, want 1", n)
	}
}

func TestGetOrFetch_RevisionChangeRefetches(t *testing.T) {
	f := &mockFetcher{data: map[string][]byte{"x.jpg": []byte("v1")}}
	c := testCache(t, f)

	if _, err := c.GetOrFetch(context.Background(), "x.jpg", "1-a"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.data["x.jpg"] = []byte("v2")
	f.mu.Unlock()

	data, err := c.GetOrFetch(context.Background(), "x.jpg", "2-b")
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("bytes = %q, want v2 (same name must overwrite)", data)
	}
	if n := atomic.LoadInt32(&f.calls); n != 2 {
		t.Errorf("network fetches = %d, want 2", n)
	}
}

func TestGetOrFetch_MissAfterRetries(t *testing.T) {
	f := &mockFetcher{failAll: true}
	c := testCache(t, f)

	_, err := c.GetOrFetch(context.Background(), "gone.jpg", "1-a")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if n := atomic.LoadInt32(&f.calls); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestGetOrFetch_StaleServedOnFailure(t *testing.T) {
	f := &mockFetcher{data: map[string][]byte{"x.jpg": []byte("v1")}}
	c := testCache(t, f)

	if _, err := c.GetOrFetch(context.Background(), "x.jpg", "1-a"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.failAll = true
	f.mu.Unlock()

	data, err := c.GetOrFetch(context.Background(), "x.jpg", "2-b")
	if err != nil {
		t.Fatalf("expected stale bytes, got error: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("bytes = %q, want stale v1", data)
	}
}

func TestGetOrFetch_ConcurrentSingleFlight(t *testing.T) {
	f := &mockFetcher{
		data:  map[string][]byte{"x.jpg": []byte("bytes")},
		delay: 20 * time.Millisecond,
	}
	c := testCache(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.GetOrFetch(context.Background(), "x.jpg", "1-a")
			if err != nil || string(data) != "bytes" {
				t.Errorf("concurrent fetch: %q, %v", data, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&f.calls); n != 1 {
		t.Errorf("network fetches = %d, want 1 (in-flight dedup)", n)
	}
}

func TestEvict(t *testing.T) {
	f := &mockFetcher{data: map[string][]byte{"x.jpg": []byte("bytes")}}
	c := testCache(t, f)

	if _, err := c.GetOrFetch(context.Background(), "x.jpg", "1-a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Evict("x.jpg"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if c.Has("x.jpg", "") {
		t.Error("still cached after evict")
	}
	// Idempotent.
	if err := c.Evict("x.jpg"); err != nil {
		t.Errorf("second evict: %v", err)
	}

	names, _ := c.Names()
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
}
