package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"slidenode/cache"
	"slidenode/deck"
	"slidenode/media"
)

// Content resolves a slide to pixels without ever blocking the render
// loop. Availability is a cheap local check; anything that needs the
// network is kicked off by Prefetch and lands before the slide comes
// around again.
type Content interface {
	Available(s *deck.Slide) bool
	Begin(s *deck.Slide) error
	Frame(s *deck.Slide) (*image.RGBA, error)
	End(s *deck.Slide)
	Prefetch(s *deck.Slide)
}

// Capturer is the website snapshot producer the library prefetches
// through. Satisfied by capture.Capturer.
type Capturer interface {
	Capture(ctx context.Context, url string, freshFor time.Duration) ([]byte, error)
}

// Library is the production Content implementation: cached attachments for
// image and video slides, background-captured screenshots for website
// slides.
type Library struct {
	cache   *cache.Cache
	capture Capturer
	width   int
	height  int

	mu       sync.Mutex
	shots    map[string]*image.RGBA // url -> letterboxed capture
	pending  map[string]bool        // url -> capture in flight
	decoded  *image.RGBA            // one-slot decode cache
	decodeOf string

	player *media.Player
	last   *image.RGBA // most recent video frame, held after EOS

	ctx context.Context
}

func NewLibrary(ctx context.Context, c *cache.Cache, cap Capturer, width, height int) *Library {
	return &Library{
		cache:   c,
		capture: cap,
		width:   width,
		height:  height,
		shots:   make(map[string]*image.RGBA),
		pending: make(map[string]bool),
		ctx:     ctx,
	}
}

// Available reports whether the slide can be shown this instant. Fallback
// slides have no media dependency and are always available.
func (l *Library) Available(s *deck.Slide) bool {
	switch s.Kind {
	case deck.KindWebsite:
		l.mu.Lock()
		_, ok := l.shots[s.URL]
		l.mu.Unlock()
		return ok
	default:
		if !s.HasAttachment() {
			return true
		}
		return l.cache.Has(s.AttachmentKey(), "")
	}
}

// Begin prepares per-slide state. Video slides get a fresh playback
// pipeline; everything else is stateless.
func (l *Library) Begin(s *deck.Slide) error {
	if s.Kind != deck.KindVideo {
		return nil
	}
	player, err := media.NewPlayer(l.cache.Path(s.AttachmentKey()), l.width, l.height)
	if err != nil {
		return fmt.Errorf("video %s: %w", s.AttachmentKey(), err)
	}
	if err := player.Start(); err != nil {
		return fmt.Errorf("video %s: %w", s.AttachmentKey(), err)
	}
	l.player = player
	l.last = nil
	return nil
}

// Frame produces the slide's current base frame. Video frames advance with
// playback; images and captures are stable for the slide's life.
func (l *Library) Frame(s *deck.Slide) (*image.RGBA, error) {
	switch s.Kind {
	case deck.KindVideo:
		return l.videoFrame()
	case deck.KindWebsite:
		l.mu.Lock()
		shot := l.shots[s.URL]
		l.mu.Unlock()
		if shot == nil {
			return nil, fmt.Errorf("no capture for %s", s.URL)
		}
		return shot, nil
	default:
		if !s.HasAttachment() {
			return blank(l.width, l.height), nil
		}
		return l.imageFrame(s)
	}
}

// End releases per-slide state. Website shots stay cached; the capturer's
// freshness window decides whether the next prefetch reuses them.
func (l *Library) End(s *deck.Slide) {
	if l.player != nil {
		l.player.Stop()
		l.player = nil
		l.last = nil
	}
}

// Prefetch warms whatever the slide will need on its next occurrence.
// Website slides get a background capture; attachment slides get a cache
// fetch. Both are fire-and-forget.
func (l *Library) Prefetch(s *deck.Slide) {
	switch s.Kind {
	case deck.KindWebsite:
		l.prefetchCapture(s.URL, s.Duration)
	default:
		if !s.HasAttachment() {
			return
		}
		key := s.AttachmentKey()
		if l.cache.Has(key, "") {
			return
		}
		go func() {
			if _, err := l.cache.GetOrFetch(l.ctx, key, ""); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("render: prefetch %s: %v", key, err)
			}
		}()
	}
}

func (l *Library) prefetchCapture(url string, freshFor time.Duration) {
	l.mu.Lock()
	if l.pending[url] {
		l.mu.Unlock()
		return
	}
	l.pending[url] = true
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.pending, url)
			l.mu.Unlock()
		}()
		data, err := l.capture.Capture(l.ctx, url, freshFor)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("render: capture %s: %v", url, err)
			}
			// A stale shot is better than a skip; keep whatever we have.
			return
		}
		img, err := media.Decode(data)
		if err != nil {
			log.Printf("render: capture %s: %v", url, err)
			return
		}
		frame := media.Letterbox(img, l.width, l.height)
		l.mu.Lock()
		l.shots[url] = frame
		l.mu.Unlock()
	}()
}

func (l *Library) imageFrame(s *deck.Slide) (*image.RGBA, error) {
	key := s.AttachmentKey()
	l.mu.Lock()
	if l.decodeOf == key && l.decoded != nil {
		frame := l.decoded
		l.mu.Unlock()
		return frame, nil
	}
	l.mu.Unlock()

	data, err := l.cache.GetOrFetch(l.ctx, key, "")
	if err != nil {
		return nil, err
	}
	img, err := media.Decode(data)
	if err != nil {
		// Corrupt bytes are evicted so the next cycle refetches them.
		if evictErr := l.cache.Evict(key); evictErr != nil {
			log.Printf("render: evict %s: %v", key, evictErr)
		}
		return nil, err
	}
	frame := media.Letterbox(img, l.width, l.height)
	l.mu.Lock()
	l.decoded = frame
	l.decodeOf = key
	l.mu.Unlock()
	return frame, nil
}

func (l *Library) videoFrame() (*image.RGBA, error) {
	if l.player == nil {
		return nil, errors.New("no active playback")
	}
	for {
		select {
		case f, ok := <-l.player.Frames():
			if !ok {
				// End of stream: hold the final frame for the rest of
				// the slide.
				if l.last == nil {
					return blank(l.width, l.height), nil
				}
				return l.last, nil
			}
			l.last = frameToRGBA(f)
		default:
			if l.last == nil {
				return blank(l.width, l.height), nil
			}
			return l.last, nil
		}
	}
}

func frameToRGBA(f media.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Data)
	return img
}

func blank(width, height int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, width, height))
}
