package media

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Frame is one decoded RGBA video frame at the display resolution.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Player decodes a local video file into a stream of RGBA frames sized for
// the display. One player serves one playback of one file; a slide that
// comes around again gets a fresh player.
//
// Pipeline:
//
//	filesrc -> decodebin -> videoconvert -> videoscale -> capsfilter -> appsink
//
// decodebin exposes its pads dynamically, so the link into videoconvert
// happens in the pad-added callback.
type Player struct {
	path   string
	width  int
	height int

	pipeline *gst.Pipeline
	frames   chan Frame

	seq     uint64
	dropped uint64
	stopped atomic.Bool
}

// NewPlayer prepares a playback pipeline for the file at path. The pipeline
// is built but not started; call Start to begin producing frames.
func NewPlayer(path string, width, height int) (*Player, error) {
	gst.Init(nil)

	p := &Player{
		path:   path,
		width:  width,
		height: height,
		frames: make(chan Frame, 4),
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	filesrc, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, fmt.Errorf("create filesrc: %w", err)
	}
	filesrc.SetProperty("location", path)

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("create decodebin: %w", err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(frameCaps(width, height)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("create appsink: %w", err)
	}
	appsink.SetProperty("max-buffers", 4)
	appsink.SetProperty("drop", false)

	pipeline.AddMany(filesrc, decodebin, converter, scaler, capsfilter, appsink.Element)

	if err := filesrc.Link(decodebin); err != nil {
		return nil, fmt.Errorf("link filesrc: %w", err)
	}
	if err := gst.ElementLinkMany(converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("link pipeline: %w", err)
	}

	// decodebin produces pads once the demuxer knows the streams. Audio
	// pads fail the link into videoconvert and are ignored.
	decodebin.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		sinkPad := converter.GetStaticPad("sink")
		if sinkPad == nil || sinkPad.IsLinked() {
			return
		}
		if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
			log.Printf("media: pad %s not linked (%v), skipping", pad.GetName(), ret)
		}
	})

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onSample,
		EOSFunc: func(_ *app.Sink) {
			// State changes from the streaming thread deadlock, so
			// teardown happens off-thread.
			go p.Stop()
		},
	})

	p.pipeline = pipeline
	return p, nil
}

// Start begins playback. Frames arrive on Frames until end of stream or
// Stop.
func (p *Player) Start() error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("start playback of %s: %w", p.path, err)
	}
	return nil
}

// Frames delivers decoded frames in presentation order. The channel closes
// at end of stream; the renderer holds the last frame for the remainder of
// the slide.
func (p *Player) Frames() <-chan Frame {
	return p.frames
}

// Stop tears the pipeline down. Safe to call more than once.
func (p *Player) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		log.Printf("media: stopping playback of %s: %v", p.path, err)
	}
	close(p.frames)
}

// Dropped reports frames discarded because the renderer fell behind.
func (p *Player) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

func (p *Player) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	// The buffer is reused by GStreamer after the callback returns.
	out := make([]byte, len(data))
	copy(out, data)
	buffer.Unmap()

	if p.stopped.Load() {
		return gst.FlowEOS
	}

	frame := Frame{
		Seq:       atomic.AddUint64(&p.seq, 1),
		Timestamp: time.Now(),
		Width:     p.width,
		Height:    p.height,
		Data:      out,
	}
	select {
	case p.frames <- frame:
	default:
		atomic.AddUint64(&p.dropped, 1)
	}
	return gst.FlowOK
}

// frameCaps locks the appsink output to RGBA at the display resolution so
// the renderer never sees a format it has to convert.
func frameCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", width, height)
}
