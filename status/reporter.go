// Package status publishes the node's playback position upstream. Delivery
// is best-effort: a failed push is dropped and the next slide change tries
// again. Nothing here may ever block the render loop.
package status

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"slidenode/couch"
)

// Pusher writes one status record upstream. Satisfied by couch.Client.
type Pusher interface {
	PutStatus(ctx context.Context, nodeUUID string, rec couch.StatusRecord) error
}

// Reporter coalesces slide-change observations into rate-limited status
// writes. Observations overwrite a single pending slot, so rapid changes
// collapse to the newest one but display order never regresses: the slot
// always holds the latest observed slide.
type Reporter struct {
	pusher   Pusher
	nodeUUID string
	limiter  *rate.Limiter
	now      func() time.Time

	mu      sync.Mutex
	pending *couch.StatusRecord
	wake    chan struct{}
}

// NewReporter builds a reporter pushing at most one write per minInterval.
func NewReporter(pusher Pusher, nodeUUID string, minInterval time.Duration) *Reporter {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &Reporter{
		pusher:   pusher,
		nodeUUID: nodeUUID,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
}

// Observe records the slide now on screen. Never blocks; the worker picks
// the value up when the rate limiter allows.
func (r *Reporter) Observe(slideName, slideKey string) {
	rec := couch.StatusRecord{
		Type:                 "tv_status",
		NodeUUID:             r.nodeUUID,
		CurrentSlideID:       slideName,
		CurrentSlideFilename: slideKey,
		Timestamp:            r.now().Format(time.RFC3339),
	}
	r.mu.Lock()
	r.pending = &rec
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains pending observations until ctx is done. One worker per
// reporter.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		r.mu.Lock()
		rec := r.pending
		r.pending = nil
		r.mu.Unlock()
		if rec == nil {
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := r.pusher.PutStatus(pushCtx, r.nodeUUID, *rec)
		cancel()
		if err != nil {
			// Dropped on purpose; the next observation retries.
			log.Printf("status: push %s: %v", rec.CurrentSlideID, err)
		}
	}
}
