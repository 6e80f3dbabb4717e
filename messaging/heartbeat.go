package messaging

import (
	"log"
	"os"
	"sync"
	"time"
)

// Publisher is what the heartbeater needs from the broker client.
type Publisher interface {
	PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error
}

// Playback supplies the current position for heartbeat payloads. Satisfied
// by the engine.
type Playback interface {
	CurrentSlide() (name, revision string)
}

// Heartbeater sends node.register on startup and node.heartbeat
// periodically, and forwards slide changes to the manager topic. All
// sends are best-effort.
//
// SlideChanged is called from the render path, so it never publishes
// inline: the latest change sits in a single pending slot and the loop
// goroutine does the broker I/O. Changes arriving faster than the broker
// accepts them coalesce to the newest.
type Heartbeater struct {
	client   Publisher
	nodeUUID string
	version  string
	width    int
	height   int
	playback Playback
	topic    string
	interval time.Duration

	startTime time.Time
	stopOnce  sync.Once
	stopCh    chan struct{}

	mu      sync.Mutex
	pending *SlideChanged
	wake    chan struct{}
}

// NewHeartbeater creates a heartbeater for the given node identity.
func NewHeartbeater(client Publisher, nodeUUID, version string, width, height int, playback Playback, topic string, interval time.Duration) *Heartbeater {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Heartbeater{
		client:   client,
		nodeUUID: nodeUUID,
		version:  version,
		width:    width,
		height:   height,
		playback: playback,
		topic:    topic,
		interval: interval,
		stopCh:   make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Start sends an initial registration and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendRegister()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// SlideChanged queues a playback advance for the loop goroutine. It never
// waits on the broker; an older queued change is simply replaced.
func (h *Heartbeater) SlideChanged(slideName string, index int, revision string) {
	h.mu.Lock()
	h.pending = &SlideChanged{
		NodeUUID:  h.nodeUUID,
		SlideName: slideName,
		Index:     index,
		Revision:  revision,
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Heartbeater) flushSlideChange() {
	h.mu.Lock()
	sc := h.pending
	h.pending = nil
	h.mu.Unlock()
	if sc == nil {
		return
	}
	env := NewEnvelope(SubjectSlideChanged, h.nodeUUID, sc)
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send slide change: %v", err)
	}
}

func (h *Heartbeater) sendRegister() {
	hostname, _ := os.Hostname()
	env := NewEnvelope(SubjectNodeRegister, h.nodeUUID, &NodeRegister{
		NodeUUID: h.nodeUUID,
		Hostname: hostname,
		Version:  h.version,
		Width:    h.width,
		Height:   h.height,
	})
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send register: %v", err)
	} else {
		log.Printf("heartbeater: sent node.register (node=%s)", h.nodeUUID)
	}
}

func (h *Heartbeater) sendHeartbeat() {
	uptime := int64(time.Since(h.startTime).Seconds())
	var slide, revision string
	if h.playback != nil {
		slide, revision = h.playback.CurrentSlide()
	}
	env := NewEnvelope(SubjectNodeHeartbeat, h.nodeUUID, &NodeHeartbeat{
		NodeUUID:     h.nodeUUID,
		Uptime:       uptime,
		CurrentSlide: slide,
		DeckRevision: revision,
	})
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send heartbeat: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		case <-h.wake:
			h.flushSlideChange()
		}
	}
}
