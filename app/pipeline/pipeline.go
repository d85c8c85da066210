package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/soocke/frame-pipeline-go/config"
	"github.com/soocke/frame-pipeline-go/debug"
	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
	"github.com/soocke/frame-pipeline-go/domain/media"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
	"github.com/soocke/frame-pipeline-go/domain/render"
	"github.com/soocke/frame-pipeline-go/platform/screen"
	"github.com/soocke/frame-pipeline-go/ui/images"
	"github.com/soocke/frame-pipeline-go/ui/presenter"
)

// Test pattern used by the player source when no media directory is set.
const (
	patternWidth  = 640
	patternHeight = 360
	patternFrames = 90
)

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("pipeline: closed")
	// ErrNoFrame is returned by SaveFrame before any frame arrived.
	ErrNoFrame = errors.New("pipeline: no frame captured")
)

// Options overrides pipeline internals, for tests.
type Options struct {
	Logger   *slog.Logger
	Clock    pacing.Clock
	NewTimer capture.TimerFactory
}

// Pipeline builds a capture source from the config on every Start and
// connects it to a long-lived renderer drawing into layer.
type Pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	opts     Options
	main     *dispatch.SerialQueue
	bus      *lifecycle.Bus
	layer    render.DisplayLayer
	renderer *render.Renderer

	mu       sync.Mutex
	closed   bool
	region   image.Rectangle
	source   string
	capturer *capture.Capturer
	latest   *capture.LatestFrame
	player   *media.SequencePlayer
	view     *screen.View
	snapshot *capture.SnapshotSource
	lastErr  string
}

// New starts the main queue and attaches a renderer to layer.
func New(cfg *config.Config, layer render.DisplayLayer, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = pacing.SystemClock()
	}
	main := dispatch.NewSerialQueue("main", opts.Logger)
	bus := lifecycle.NewBus(main, opts.Logger)
	p := &Pipeline{
		cfg:    cfg,
		logger: opts.Logger,
		opts:   opts,
		main:   main,
		bus:    bus,
		layer:  layer,
		source: cfg.Source,
		region: image.Rect(cfg.SelectionX, cfg.SelectionY, cfg.SelectionX+cfg.SelectionW, cfg.SelectionY+cfg.SelectionH),
	}
	p.renderer = render.NewRenderer(layer, main, bus, render.Options{
		Logger:  opts.Logger,
		Gravity: render.ParseGravity(cfg.Gravity),
	})
	main.Sync(p.renderer.Attach)
	return p
}

// Bus is the lifecycle bus the renderer and snapshot sources follow.
func (p *Pipeline) Bus() *lifecycle.Bus { return p.bus }

// Renderer returns the renderer.
func (p *Pipeline) Renderer() *render.Renderer { return p.renderer }

// Capturer returns the running capturer, or nil.
func (p *Pipeline) Capturer() *capture.Capturer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturer
}

func (p *Pipeline) pacingConfig() pacing.Config {
	refresh := time.Second / time.Duration(p.cfg.RefreshHz)
	return pacing.Config{
		Strategy:        pacing.Strategy(p.cfg.Pacing),
		Interval:        time.Duration(p.cfg.IntervalMicros) * time.Microsecond,
		Leeway:          time.Duration(p.cfg.LeewayMicros) * time.Microsecond,
		RefreshInterval: refresh,
		Divisor:         pacing.DivisorForRate(refresh, p.cfg.FrameRate),
	}
}

func (p *Pipeline) pixelFormat() frame.PixelFormat {
	if p.cfg.PixelFormat == "ARGB" {
		return frame.PixelFormat32ARGB
	}
	return frame.PixelFormat32BGRA
}

// buildSource creates the source selected by the config. Must hold p.mu.
func (p *Pipeline) buildSource() (capture.Source, error) {
	cfg := p.cfg
	switch cfg.Source {
	case config.SourceScreen:
		view := screen.NewView(p.region)
		var src *capture.SnapshotSource
		p.main.Sync(func() {
			src = capture.NewSnapshotSource(view, p.main, p.bus, capture.SnapshotOptions{
				Pacing:      p.pacingConfig(),
				FrameRate:   cfg.FrameRate,
				PixelFormat: p.pixelFormat(),
				PoolSize:    cfg.PoolSize,
				Clock:       p.opts.Clock,
				NewTimer:    p.opts.NewTimer,
				Logger:      p.logger,
			})
		})
		p.view, p.snapshot = view, src
		return src, nil

	case config.SourceRecorder:
		rec := screen.NewRecorder(screen.RecorderOptions{
			Region:    p.region,
			FrameRate: cfg.FrameRate,
			Clock:     p.opts.Clock,
			Logger:    p.logger,
		})
		return capture.NewPushSource(rec, capture.PushOptions{Format: rec.Format(), Logger: p.logger}), nil
	}

	var (
		frames []image.Image
		err    error
	)
	if cfg.MediaDir != "" {
		frames, err = media.LoadDir(cfg.MediaDir)
	} else {
		frames, err = media.TestPattern(patternWidth, patternHeight, patternFrames)
	}
	if err != nil {
		return nil, err
	}
	player, err := media.NewSequencePlayer(frames, media.Options{
		FrameRate: cfg.FrameRate,
		Loop:      cfg.Loop,
		Clock:     p.opts.Clock,
		Logger:    p.logger,
	})
	if err != nil {
		return nil, err
	}
	w, h := player.PresentationSize()
	if limit := cfg.MaxDimension; w > limit || h > limit {
		r := capture.FitAspect(w, h, image.Rect(0, 0, limit, limit))
		w, h = r.Dx(), r.Dy()
	}
	suspend := time.Duration(cfg.SuspendTimeoutMs) * time.Millisecond
	if suspend == 0 {
		suspend = -1
	}
	p.player = player
	return capture.NewPullSource(player, capture.PullOptions{
		Pacing:         p.pacingConfig(),
		Clock:          p.opts.Clock,
		MaxDimension:   cfg.MaxDimension,
		SuspendTimeout: suspend,
		Format: frame.FormatDescriptor{
			Width:       w,
			Height:      h,
			FrameRate:   cfg.FrameRate,
			PixelFormat: frame.PixelFormatYUV420BiPlanarVideoRange,
		},
		NewTimer: p.opts.NewTimer,
		Logger:   p.logger,
	}), nil
}

// Start builds the configured source and starts capturing into the
// renderer. Starting a running pipeline is a no-op.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.capturer != nil {
		return nil
	}
	p.source = p.cfg.Source
	src, err := p.buildSource()
	if err != nil {
		return p.failLocked(fmt.Errorf("pipeline: build %s source: %w", p.cfg.Source, err))
	}
	c := capture.NewCapturer(src, capture.Options{
		Logger:        p.logger,
		Debug:         p.cfg.Debug,
		StatsInterval: time.Duration(p.cfg.StatsIntervalSec) * time.Second,
	})
	formats := c.SupportedFormats()
	if len(formats) == 0 {
		_ = c.Close()
		p.releaseSourceLocked()
		return p.failLocked(capture.ErrUnsupportedFormat)
	}
	latest := &capture.LatestFrame{}
	consumer := &capture.Tee{Primary: p.renderer, Observers: []capture.Consumer{latest}}
	if err := c.StartCapture(formats[0], consumer); err != nil {
		_ = c.Close()
		p.releaseSourceLocked()
		return p.failLocked(err)
	}
	if p.player != nil {
		p.player.Play()
	}
	p.capturer = c
	p.latest = latest
	p.lastErr = ""
	p.logger.Info("pipeline started", "source", p.source, "capturer", c.ID(), "format", formats[0].String())
	return nil
}

func (p *Pipeline) failLocked(err error) error {
	p.lastErr = err.Error()
	p.logger.Error("pipeline start failed", "source", p.cfg.Source, "error", err)
	return err
}

func (p *Pipeline) releaseSourceLocked() {
	if p.player != nil {
		_ = p.player.Close()
		p.player = nil
	}
	p.view, p.snapshot = nil, nil
}

// Stop ends the capture session and releases the source. Idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Pipeline) stopLocked() {
	if p.capturer == nil {
		return
	}
	c := p.capturer
	p.capturer = nil
	c.StopCapture()
	if err := c.Close(); err != nil {
		p.logger.Warn("capturer close failed", "error", err)
	}
	p.latest.Reset()
	p.latest = nil
	p.releaseSourceLocked()
	p.logger.Info("pipeline stopped", "source", p.source)
}

// Close stops capture, detaches the renderer and shuts the main queue down.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()
	p.main.Sync(p.renderer.Close)
	p.main.Close()
}

// SaveFrame writes the newest captured frame to path as PNG, upright.
func (p *Pipeline) SaveFrame(path string) error {
	p.mu.Lock()
	latest := p.latest
	p.mu.Unlock()
	var b *frame.Buffer
	if latest != nil {
		b = latest.Latest()
	}
	if b == nil {
		return ErrNoFrame
	}
	defer b.Release()
	img, err := images.ToRGBA(b)
	if err != nil {
		return fmt.Errorf("pipeline: save frame: %w", err)
	}
	data := images.EncodePNG(images.Orient(img, b.Orientation))
	if len(data) == 0 {
		return fmt.Errorf("pipeline: save frame: png encode failed")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pipeline: save frame: %w", err)
	}
	p.logger.Info("frame saved", "path", path, "width", b.Width, "height", b.Height)
	return nil
}

// SetGravity changes the preview gravity.
func (p *Pipeline) SetGravity(name string) {
	if gs, ok := p.layer.(render.GravitySetter); ok {
		gs.SetGravity(render.ParseGravity(name))
	}
}

// SetRegion changes the captured screen region. A running snapshot session
// follows immediately; the recorder picks it up on the next start.
func (p *Pipeline) SetRegion(r image.Rectangle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.region = r
	if p.view != nil {
		p.view.SetRegion(r)
	}
}

// Status reports pipeline state for the status label. It never waits on
// the main queue, so the Tk thread can poll it every tick.
func (p *Pipeline) Status() presenter.Status {
	p.mu.Lock()
	c, source, lastErr := p.capturer, p.source, p.lastErr
	p.mu.Unlock()
	rs := p.renderer.Stats()
	st := presenter.Status{
		Source:   source,
		Renderer: rs.State,
		Rendered: rs.Rendered,
		Err:      lastErr,
	}
	if c != nil {
		st.Capture = c.State()
	}
	if st.Renderer != render.StateInactive {
		st.Video = p.renderer.VideoSize()
	}
	return st
}

// Reporters returns stats reporters that follow the current session.
func (p *Pipeline) Reporters() []debug.Reporter {
	return []debug.Reporter{
		{Name: "capturer", Read: func() []any {
			c := p.Capturer()
			if c == nil {
				return nil
			}
			return debug.CapturerReporter(c).Read()
		}},
		debug.RendererReporter(p.renderer),
		debug.PoolReporter(func() (frame.PoolStats, bool) {
			p.mu.Lock()
			s := p.snapshot
			p.mu.Unlock()
			if s == nil {
				return frame.PoolStats{}, false
			}
			return s.PoolStats()
		}),
	}
}
