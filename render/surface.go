package render

import (
	"image"
	"sync"
)

// Surface is the visible output. The render loop is its only writer; any
// other component that wants pixels reads a snapshot through Latest.
type Surface interface {
	Present(frame *image.RGBA) error
}

// Null discards every frame. Used in tests and headless smoke runs.
type Null struct{}

func (Null) Present(*image.RGBA) error { return nil }

// Latest keeps the most recently presented frame for diagnostics readers.
// Present stores the frame as-is; the loop never mutates a frame after
// presenting it, so readers can hold the returned pointer.
type Latest struct {
	mu    sync.RWMutex
	frame *image.RGBA
}

func (l *Latest) Present(frame *image.RGBA) error {
	l.mu.Lock()
	l.frame = frame
	l.mu.Unlock()
	return nil
}

// Frame returns the last presented frame, or nil before the first present.
func (l *Latest) Frame() *image.RGBA {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame
}

// Tee presents to several surfaces in order, so a physical output and the
// diagnostics snapshot can share the loop.
type Tee []Surface

func (t Tee) Present(frame *image.RGBA) error {
	var first error
	for _, s := range t {
		if err := s.Present(frame); err != nil && first == nil {
			first = err
		}
	}
	return first
}
