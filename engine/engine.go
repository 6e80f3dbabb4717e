package engine

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"slidenode/cache"
	"slidenode/capture"
	"slidenode/config"
	"slidenode/couch"
	"slidenode/deck"
	"slidenode/feed"
	"slidenode/messaging"
	"slidenode/reaper"
	"slidenode/render"
	"slidenode/status"
	"slidenode/store"
	"slidenode/www"
)

// Engine wires the node's subsystems: the deck synchronizer, the media
// cache, the render loop, the status reporter, the reaper, and the
// optional broker and diagnostics surfaces.
type Engine struct {
	cfg     *config.Config
	db      *store.DB
	surface render.Surface
	version string

	couch    *couch.Client
	cache    *cache.Cache
	capturer *capture.Capturer
	feedMgr  *feed.Manager
	renderer *render.Renderer
	reporter *status.Reporter
	gc       *reaper.Reaper

	msgClient   *messaging.Client
	heartbeater *messaging.Heartbeater

	screen    *render.Latest
	webServer *http.Server

	Events *EventBus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	slide   string // current slide name, for heartbeats
	slideRv string
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig *config.Config
	DB        *store.DB
	Surface   render.Surface // optional physical output; nil renders to the diagnostics snapshot only
	Version   string
}

// New creates the engine. Call Start to wire and launch subsystems.
func New(c Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:     c.AppConfig,
		db:      c.DB,
		surface: c.Surface,
		version: c.Version,
		Events:  NewEventBus(),
		screen:  &render.Latest{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start builds every subsystem, performs the blocking initial deck fetch,
// and launches the workers.
func (e *Engine) Start() error {
	cfg := e.cfg

	e.couch = couch.NewClient(cfg.CouchURL, cfg.Database)

	var err error
	e.cache, err = cache.New(cfg.MediaDir(), e.db, e.couch, cfg.NodeUUID)
	if err != nil {
		return fmt.Errorf("media cache: %w", err)
	}
	e.cache.SetEvents(&cacheEmitter{bus: e.Events})

	e.capturer = capture.New(
		cfg.Display.Width, cfg.Display.Height,
		cfg.Capture.Timeout, cfg.Capture.SettleWait, cfg.Capture.ExecPath,
	)
	e.capturer.SetEvents(&captureEmitter{bus: e.Events})

	e.feedMgr = feed.NewManager(e.ctx, e.couch, e.cache, e.db, &feedEmitter{bus: e.Events}, cfg.NodeUUID, cfg.ManagerURL)
	e.feedMgr.SetIntervals(cfg.Feed.Heartbeat, cfg.Feed.MaxBackoff)

	library := render.NewLibrary(e.ctx, e.cache, e.capturer, cfg.Display.Width, cfg.Display.Height)

	out := render.Surface(e.screen)
	if e.surface != nil {
		out = render.Tee{e.surface, e.screen}
	}
	e.renderer = render.NewRenderer(e.feedMgr, library, out, &renderEmitter{bus: e.Events}, render.Options{
		Width:     cfg.Display.Width,
		Height:    cfg.Display.Height,
		Tick:      cfg.Display.TickRate,
		ScrollPPS: cfg.Display.ScrollPPS,
		Fallback:  deck.NewFallback(cfg.NodeUUID, cfg.ManagerURL).Slides[0],
	})

	e.reporter = status.NewReporter(e.couch, cfg.NodeUUID, cfg.Status.MinInterval)

	var remote reaper.Remote
	if cfg.Reaper.RemoteCleanup {
		remote = e.couch
	}
	e.gc = reaper.New(e.feedMgr, e.cache, remote, &reaperEmitter{bus: e.Events}, cfg.NodeUUID, cfg.Reaper.Interval)

	e.wireEventHandlers()
	e.startMessaging()
	e.startWeb()

	// Blocking startup fetch: remote, then persisted snapshot, then the
	// synthetic fallback. Never fails.
	initCtx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	d := e.feedMgr.FetchInitial(initCtx)
	cancel()
	log.Printf("engine: starting with deck rev=%s slides=%d fallback=%v", d.Revision, len(d.Slides), d.Fallback)

	e.spawn(e.feedMgr.Run)
	e.spawn(e.renderer.Run)
	e.spawn(e.reporter.Run)
	e.spawn(e.gc.Run)
	return nil
}

func (e *Engine) spawn(run func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		run(e.ctx)
	}()
}

// wireEventHandlers connects the bus to the reporter, the heartbeater, and
// the engine's own playback bookkeeping.
func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		sc, ok := evt.Payload.(SlideChangedEvent)
		if !ok {
			return
		}
		e.mu.Lock()
		e.slide = sc.SlideName
		e.slideRv = sc.Revision
		e.mu.Unlock()

		e.reporter.Observe(sc.SlideName, sc.SlideKey)
		if e.heartbeater != nil {
			e.heartbeater.SlideChanged(sc.SlideName, sc.Index, sc.Revision)
		}
	}, EventSlideChanged)
}

func (e *Engine) startMessaging() {
	if e.cfg.Messaging.Backend == "" {
		return
	}
	e.msgClient = messaging.NewClient(&e.cfg.Messaging)
	if err := e.msgClient.Connect(); err != nil {
		// Telemetry only: the node plays on without a broker.
		log.Printf("engine: messaging connect: %v", err)
	}
	e.heartbeater = messaging.NewHeartbeater(
		e.msgClient, e.cfg.NodeUUID, e.version,
		e.cfg.Display.Width, e.cfg.Display.Height,
		e, e.cfg.Messaging.NodeTopic, e.cfg.Messaging.HeartbeatInterval,
	)
	e.heartbeater.Start()
}

func (e *Engine) startWeb() {
	if !e.cfg.Web.Enabled {
		return
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Web.Host, e.cfg.Web.Port)
	e.webServer = &http.Server{
		Addr:    addr,
		Handler: www.NewRouter(e, e.screen),
	}
	go func() {
		log.Printf("engine: diagnostics endpoint on http://%s", addr)
		if err := e.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("engine: diagnostics server: %v", err)
		}
	}()
}

// Stop shuts everything down and waits for the workers.
func (e *Engine) Stop() {
	e.cancel()
	if e.heartbeater != nil {
		e.heartbeater.Stop()
	}
	if e.msgClient != nil {
		e.msgClient.Close()
	}
	if e.webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		e.webServer.Shutdown(shutdownCtx)
		cancel()
	}
	e.wg.Wait()
	log.Printf("engine: stopped")
}

// CurrentSlide reports the playing slide for heartbeat payloads.
func (e *Engine) CurrentSlide() (name, revision string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slide, e.slideRv
}

// Status builds the diagnostics snapshot served by the www surface.
func (e *Engine) Status() www.Status {
	d := e.feedMgr.Current()
	slide, idx, phase := e.renderer.Current()

	st := www.Status{
		NodeUUID:     e.cfg.NodeUUID,
		DeckRevision: d.Revision,
		Fallback:     d.Fallback,
		SlideCount:   len(d.Slides),
		CurrentIndex: idx,
		Phase:        phase.String(),
		FeedHealthy:  e.feedMgr.Connected(),
	}
	if slide != nil {
		st.CurrentSlide = slide.Name
	}
	if names, err := e.cache.Names(); err == nil {
		st.CachedMedia = names
	}
	return st
}
