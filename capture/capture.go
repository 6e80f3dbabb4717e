package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrCaptureFailed signals that a website could not be captured after the
// bounded retries. The renderer treats the slide occurrence as unavailable.
var ErrCaptureFailed = errors.New("capture: screenshot failed")

// EventEmitter receives capture failure notifications.
type EventEmitter interface {
	EmitCaptureFailed(url string, err error)
}

// Capturer produces still images of web pages through a headless browser.
// Every capture runs in a fresh, isolated browser session torn down on all
// exit paths; no session is reused across slides.
type Capturer struct {
	width    int
	height   int
	timeout  time.Duration
	settle   time.Duration
	execPath string
	retries  int
	events   EventEmitter

	// run performs one isolated capture attempt; replaceable in tests.
	run func(ctx context.Context, url string) ([]byte, error)

	mu     sync.Mutex
	recent map[string]snapshot
}

type snapshot struct {
	data []byte
	at   time.Time
}

// New creates a capturer producing images at the given viewport size.
// execPath optionally points at the browser binary; empty uses chromedp's
// default lookup.
func New(width, height int, timeout, settle time.Duration, execPath string) *Capturer {
	c := &Capturer{
		width:    width,
		height:   height,
		timeout:  timeout,
		settle:   settle,
		execPath: execPath,
		retries:  3,
		recent:   make(map[string]snapshot),
	}
	c.run = c.runChrome
	return c
}

// SetEvents installs an event emitter. Call before the capturer is shared
// across goroutines.
func (c *Capturer) SetEvents(e EventEmitter) {
	c.events = e
}

// Capture returns a screenshot of url, reusing a previous capture while it
// is younger than freshFor. A zero freshFor always recaptures. Failed
// sessions are retried up to 3 times before ErrCaptureFailed.
func (c *Capturer) Capture(ctx context.Context, url string, freshFor time.Duration) ([]byte, error) {
	if freshFor > 0 {
		c.mu.Lock()
		if s, ok := c.recent[url]; ok && time.Since(s.at) < freshFor {
			c.mu.Unlock()
			return s.data, nil
		}
		c.mu.Unlock()
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		data, err := c.run(ctx, url)
		if err == nil {
			c.mu.Lock()
			c.recent[url] = snapshot{data: data, at: time.Now()}
			c.mu.Unlock()
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("capture: attempt %d for %s: %v", attempt, url, err)
	}
	if c.events != nil {
		c.events.EmitCaptureFailed(url, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrCaptureFailed, url, lastErr)
}

// Forget drops the cached capture for url, forcing the next Capture to hit
// the browser.
func (c *Capturer) Forget(url string) {
	c.mu.Lock()
	delete(c.recent, url)
	c.mu.Unlock()
}

// runChrome performs one capture in a dedicated browser session. The
// allocator and browser contexts are cancelled unconditionally so a failed
// navigation can never leak a browser process.
func (c *Capturer) runChrome(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(c.width, c.height),
		chromedp.Flag("hide-scrollbars", true),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(c.width), int64(c.height)),
		chromedp.Navigate(url),
		chromedp.Sleep(c.settle),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("session for %s: %w", url, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("session for %s: empty screenshot", url)
	}
	return buf, nil
}
