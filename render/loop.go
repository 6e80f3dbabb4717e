package render

import (
	"context"
	"image"
	"log"
	"sync"
	"time"

	"slidenode/deck"
)

// Phase is the position within one slide's display cycle.
type Phase int

const (
	Entering Phase = iota // fade in
	Holding               // steady display
	Exiting               // fade out
)

func (p Phase) String() string {
	switch p {
	case Entering:
		return "entering"
	case Holding:
		return "holding"
	case Exiting:
		return "exiting"
	}
	return "unknown"
}

// DeckSource hands out the latest immutable deck snapshot. Satisfied by
// feed.Manager.
type DeckSource interface {
	Current() *deck.Deck
}

// EventEmitter receives the loop's lifecycle events.
type EventEmitter interface {
	EmitSlideChanged(name, key string, index int, revision string)
	EmitSlideSkipped(name, reason string)
}

// Options configure a Renderer.
type Options struct {
	Width     int
	Height    int
	Tick      time.Duration // frame interval
	ScrollPPS float64       // overlay scroll speed, px/s
	Fallback  deck.Slide    // shown when every deck slide is unavailable
	Now       func() time.Time
}

// Renderer owns the slide state machine and is the only writer to the
// Surface. All timing flows through Step so tests drive it without wall
// clocks; Run is the production pump.
//
// Per slide: Entering (fade in) -> Holding -> Exiting (fade out) -> next
// index. Deck replacement is only observed at slide boundaries; a new deck
// never hard-cuts a slide mid-display.
type Renderer struct {
	source  DeckSource
	content Content
	surface Surface
	emitter EventEmitter
	opts    Options

	deck    *deck.Deck
	index   int
	slide   *deck.Slide
	phase   Phase
	elapsed time.Duration
	fade    time.Duration
	hold    time.Duration
	scroll  *scrollState

	mediaFree bool // current slide renders without any media lookup
	exhausted bool
	recheck   time.Duration // countdown to the next availability pass

	started bool

	// Mutable loop state above belongs to the stepping goroutine alone.
	// Other goroutines observe playback only through this snapshot.
	curMu sync.Mutex
	cur   cursor
}

type cursor struct {
	slide *deck.Slide
	index int
	phase Phase
}

func NewRenderer(source DeckSource, content Content, surface Surface, emitter EventEmitter, opts Options) *Renderer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second / 30
	}
	if opts.ScrollPPS <= 0 {
		opts.ScrollPPS = 50
	}
	return &Renderer{
		source:  source,
		content: content,
		surface: surface,
		emitter: emitter,
		opts:    opts,
	}
}

// Run drives the loop at the configured tick until ctx is done. The loop
// never blocks on anything but the ticker.
func (r *Renderer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()

	last := r.opts.Now()
	for {
		select {
		case <-ctx.Done():
			if r.slide != nil {
				r.content.End(r.slide)
			}
			return
		case <-ticker.C:
			now := r.opts.Now()
			r.Step(now.Sub(last))
			last = now
		}
	}
}

// Current reports the slide being displayed, or nil before the first one.
// Safe to call from any goroutine; slides are immutable once dealt.
func (r *Renderer) Current() (slide *deck.Slide, index int, phase Phase) {
	r.curMu.Lock()
	defer r.curMu.Unlock()
	return r.cur.slide, r.cur.index, r.cur.phase
}

func (r *Renderer) syncCursor() {
	r.curMu.Lock()
	r.cur = cursor{slide: r.slide, index: r.index, phase: r.phase}
	r.curMu.Unlock()
}

// Step advances the state machine by dt and presents one frame.
func (r *Renderer) Step(dt time.Duration) {
	defer r.syncCursor()
	if !r.started {
		r.started = true
		r.deck = r.source.Current()
		r.begin(0)
	}

	if r.exhausted {
		r.recheck -= dt
		if r.recheck <= 0 {
			r.deck = r.source.Current()
			r.begin(0)
		}
	}

	if r.slide == nil {
		return
	}

	r.elapsed += dt
	switch r.phase {
	case Entering:
		if r.elapsed >= r.fade {
			r.phase = Holding
			r.elapsed = 0
		}
	case Holding:
		if r.elapsed >= r.hold {
			if r.fade > 0 {
				r.phase = Exiting
				r.elapsed = 0
			} else {
				r.advance()
			}
		}
	case Exiting:
		if r.elapsed >= r.fade {
			r.advance()
		}
	}

	if r.scroll != nil {
		r.scroll.step(dt.Seconds())
	}
	r.present()
}

// advance ends the current slide and starts the next available one. The
// deck snapshot is re-read here, never mid-slide.
func (r *Renderer) advance() {
	if r.slide != nil {
		r.content.End(r.slide)
	}

	next := r.index + 1
	if d := r.source.Current(); d != r.deck {
		r.deck = d
		if next >= len(d.Slides) {
			next = 0
		}
	} else if next >= len(r.deck.Slides) {
		next = 0
	}
	r.begin(next)
}

// begin scans for the first startable slide from index 'from', trying each
// slide at most once. When the whole deck is unavailable the fallback slide
// is shown and a recheck is scheduled one full cycle away.
//
// A fallback deck's own slide bypasses the availability check: it renders
// from its overlay alone and cannot fail.
func (r *Renderer) begin(from int) {
	d := r.deck
	if d == nil || len(d.Slides) == 0 {
		r.enterFallback()
		return
	}

	n := len(d.Slides)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		s := &d.Slides[idx]
		if !d.Fallback && !r.content.Available(s) {
			log.Printf("render: skipping %s, media unavailable", s.Name)
			if r.emitter != nil {
				r.emitter.EmitSlideSkipped(s.Name, "unavailable")
			}
			r.content.Prefetch(s)
			continue
		}
		if r.start(s, idx, d.Fallback) {
			return
		}
	}
	r.enterFallback()
}

// start makes slide s at idx current and resets phase timing. Fade is
// clamped so entering plus exiting never exceeds the slide's duration.
// Returns false when the slide's content could not be started.
func (r *Renderer) start(s *deck.Slide, idx int, mediaFree bool) bool {
	if !mediaFree {
		if err := r.content.Begin(s); err != nil {
			log.Printf("render: starting %s: %v", s.Name, err)
			if r.emitter != nil {
				r.emitter.EmitSlideSkipped(s.Name, err.Error())
			}
			return false
		}
	}

	fade := s.Fade
	if max := s.Duration / 2; fade > max {
		fade = max
	}
	hold := s.Duration - 2*fade
	if hold < 0 {
		hold = 0
	}

	r.slide = s
	r.index = idx
	r.fade = fade
	r.hold = hold
	r.elapsed = 0
	r.mediaFree = mediaFree
	r.exhausted = false
	if fade > 0 {
		r.phase = Entering
	} else {
		r.phase = Holding
	}

	r.scroll = nil
	if s.Overlay != nil && s.Overlay.Text != "" {
		text := expandText(s.Overlay.Text, r.opts.Now())
		w := textWidth(text, sizeScale(s.Overlay.Size))
		r.scroll = newScrollState(w, r.opts.Width, r.opts.ScrollPPS, s.Overlay.Scroll)
	}

	if r.emitter != nil {
		r.emitter.EmitSlideChanged(s.Name, slideKey(s), idx, r.deck.Revision)
	}
	r.prefetchUpcoming(idx)
	return true
}

// prefetchUpcoming warms the slide after idx so its media is ready by the
// time the cursor reaches it. Website captures are the main beneficiary;
// the loop itself never waits on them.
func (r *Renderer) prefetchUpcoming(idx int) {
	d := r.deck
	if d == nil || d.Fallback || len(d.Slides) < 2 {
		return
	}
	r.content.Prefetch(&d.Slides[(idx+1)%len(d.Slides)])
}

// enterFallback displays the media-free default slide and schedules an
// availability recheck one full cycle of the real deck away.
func (r *Renderer) enterFallback() {
	if r.exhausted && r.slide != nil {
		// Already showing fallback; rearm the recheck without
		// re-announcing the slide.
		r.elapsed = 0
		r.recheck = r.cycleDuration()
		return
	}
	fb := r.opts.Fallback
	r.slide = &fb
	r.index = 0
	r.fade = 0
	r.hold = fb.Duration
	r.elapsed = 0
	r.phase = Holding
	r.mediaFree = true
	r.exhausted = true
	r.recheck = r.cycleDuration()

	r.scroll = nil
	if fb.Overlay != nil && fb.Overlay.Text != "" {
		w := textWidth(fb.Overlay.Text, sizeScale(fb.Overlay.Size))
		r.scroll = newScrollState(w, r.opts.Width, r.opts.ScrollPPS, fb.Overlay.Scroll)
	}

	if r.emitter != nil {
		r.emitter.EmitSlideChanged(fb.Name, "", 0, "")
	}
}

// cycleDuration is the sum of the deck's slide durations, the interval at
// which an exhausted deck is rechecked.
func (r *Renderer) cycleDuration() time.Duration {
	if r.deck == nil || len(r.deck.Slides) == 0 {
		return 10 * time.Second
	}
	var total time.Duration
	for i := range r.deck.Slides {
		total += r.deck.Slides[i].Duration
	}
	if total <= 0 {
		total = 10 * time.Second
	}
	return total
}

// present composes and publishes one frame for the current slide.
func (r *Renderer) present() {
	s := r.slide
	if s == nil {
		return
	}

	var base *image.RGBA
	if r.mediaFree {
		base = blank(r.opts.Width, r.opts.Height)
	} else {
		var err error
		base, err = r.content.Frame(s)
		if err != nil {
			log.Printf("render: frame for %s: %v", s.Name, err)
			r.content.End(s)
			r.begin((r.index + 1) % len(r.deck.Slides))
			return
		}
	}

	frame := image.NewRGBA(base.Rect)
	copy(frame.Pix, base.Pix)
	drawOverlay(frame, s.Overlay, r.scroll, r.opts.Now())

	switch r.phase {
	case Entering:
		frame = dim(frame, float64(r.elapsed)/float64(r.fade))
	case Exiting:
		frame = dim(frame, 1-float64(r.elapsed)/float64(r.fade))
	}

	if err := r.surface.Present(frame); err != nil {
		log.Printf("render: present: %v", err)
	}
}

// slideKey is what goes upstream in status reports: the attachment key for
// media slides, the URL for website slides.
func slideKey(s *deck.Slide) string {
	if s.Kind == deck.KindWebsite {
		return s.URL
	}
	if s.HasAttachment() {
		return s.AttachmentKey()
	}
	return ""
}
