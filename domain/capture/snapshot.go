package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

const (
	defaultSnapshotFrameRate = 5
	defaultSnapshotWidth     = 1280
	defaultSnapshotHeight    = 720
)

// View is a snapshot target. Every method is called on the main queue only.
type View interface {
	// Attached reports whether the view is part of a visible hierarchy.
	Attached() bool
	Bounds() image.Rectangle
	// DrawHierarchy renders the view opaquely into dst, whose rectangle is
	// Bounds translated to the origin.
	DrawHierarchy(dst *image.RGBA) error
}

// SnapshotOptions configures a SnapshotSource. Zero fields take defaults.
type SnapshotOptions struct {
	Pacing    pacing.Config
	FrameRate int
	// PixelFormat is 32BGRA or 32ARGB.
	PixelFormat frame.PixelFormat
	// PoolSize is the number of reusable backing buffers. Zero allocates a
	// fresh buffer for every frame.
	PoolSize int
	// Size overrides the declared dimensions, which otherwise follow the
	// view bounds at construction.
	Size     image.Point
	Clock    pacing.Clock
	NewTimer TimerFactory
	Logger   *slog.Logger
}

func (o SnapshotOptions) withDefaults() SnapshotOptions {
	if o.FrameRate <= 0 {
		o.FrameRate = defaultSnapshotFrameRate
	}
	if o.PixelFormat != frame.PixelFormat32ARGB {
		o.PixelFormat = frame.PixelFormat32BGRA
	}
	if o.Pacing.Strategy == "" {
		o.Pacing.Strategy = pacing.StrategyDisplayRefresh
	}
	if o.Pacing.Divisor <= 0 {
		refresh := o.Pacing.RefreshInterval
		if refresh <= 0 {
			refresh = pacing.DefaultRefreshInterval
		}
		o.Pacing.Divisor = pacing.DivisorForRate(refresh, o.FrameRate)
	}
	if o.Pacing.Interval <= 0 {
		o.Pacing.Interval = time.Second / time.Duration(o.FrameRate)
	}
	if o.Clock == nil {
		o.Clock = pacing.SystemClock()
	}
	if o.NewTimer == nil {
		o.NewTimer = defaultTimerFactory
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// SnapshotSource renders a view into a new buffer on every tick. Rendering
// happens on the main queue.
type SnapshotSource struct {
	view    View
	main    dispatch.Queue
	bus     *lifecycle.Bus
	opts    SnapshotOptions
	logger  *slog.Logger
	formats []frame.FormatDescriptor
	pool    *frame.Pool

	mu  sync.Mutex
	run *snapshotRun
}

// NewSnapshotSource must be called on the main queue since it reads the view
// bounds. bus may be nil.
func NewSnapshotSource(view View, main dispatch.Queue, bus *lifecycle.Bus, opts SnapshotOptions) *SnapshotSource {
	opts = opts.withDefaults()
	s := &SnapshotSource{view: view, main: main, bus: bus, opts: opts, logger: opts.Logger}
	size := opts.Size
	if size == (image.Point{}) && view != nil {
		size = view.Bounds().Size()
	}
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(defaultSnapshotWidth, defaultSnapshotHeight)
	}
	s.formats = []frame.FormatDescriptor{{
		Width:       size.X,
		Height:      size.Y,
		FrameRate:   opts.FrameRate,
		PixelFormat: opts.PixelFormat,
	}}
	if opts.PoolSize > 0 {
		s.pool = frame.NewPool(opts.PoolSize)
	}
	return s
}

func (s *SnapshotSource) Formats() []frame.FormatDescriptor {
	return append([]frame.FormatDescriptor(nil), s.formats...)
}

func (s *SnapshotSource) Screencast() bool { return true }

// PoolStats reports backing buffer usage. ok is false without a pool.
func (s *SnapshotSource) PoolStats() (stats frame.PoolStats, ok bool) {
	if s.pool == nil {
		return frame.PoolStats{}, false
	}
	return s.pool.Stats(), true
}

// Start must not be called on the main queue.
func (s *SnapshotSource) Start(sess Session) error {
	var err error
	if !s.main.Sync(func() { err = s.startOnMain(sess) }) {
		return errors.New("capture: main queue closed")
	}
	return err
}

func (s *SnapshotSource) startOnMain(sess Session) error {
	if s.view == nil || !s.view.Attached() {
		return ErrNoTargetView
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return nil
	}
	cfg := s.opts.Pacing
	cfg.StartPaused = s.bus != nil && s.bus.Background()
	timer, err := s.opts.NewTimer(cfg, s.main, s.opts.Clock)
	if err != nil {
		return err
	}
	r := &snapshotRun{src: s, sess: sess, timer: timer}
	r.live.Store(true)
	if err := timer.Start(r.onTick); err != nil {
		timer.Stop()
		return err
	}
	if s.bus != nil {
		r.sub = s.bus.Subscribe(r.onLifecycle)
	}
	s.run = r
	sess.Logger.Info("snapshot capture started", "bounds", s.view.Bounds().String(), "paused", cfg.StartPaused)
	return nil
}

// Stop is safe from any goroutine, including the main queue.
func (s *SnapshotSource) Stop() {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.live.Store(false)
	r.timer.Stop()
	r.sub.Cancel()
}

// Close releases idle pooled buffers.
func (s *SnapshotSource) Close() error {
	s.Stop()
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *SnapshotSource) alloc(size int) ([]byte, func(), error) {
	if s.pool != nil {
		return s.pool.Acquire(size)
	}
	return frame.Alloc(size)
}

type snapshotRun struct {
	src   *SnapshotSource
	sess  Session
	timer pacing.Timer
	sub   *lifecycle.Subscription
	live  atomic.Bool
}

func (r *snapshotRun) onLifecycle(e lifecycle.Event) {
	if !r.live.Load() {
		return
	}
	switch e {
	case lifecycle.DidEnterBackground:
		r.timer.Pause()
	case lifecycle.WillEnterForeground:
		r.timer.Resume()
	}
}

func (r *snapshotRun) onTick(t pacing.Tick) {
	if !r.live.Load() {
		return
	}
	v := r.src.view
	bounds := v.Bounds()
	if !v.Attached() || bounds.Empty() {
		r.sess.Sink.Skipped()
		return
	}
	start := time.Now()
	w, h := bounds.Dx(), bounds.Dy()
	stride := w * 4
	data, release, err := r.src.alloc(stride * h)
	if err != nil {
		if errors.Is(err, frame.ErrPoolExhausted) {
			r.sess.Sink.Discarded("pool exhausted")
		} else {
			r.sess.Sink.Discarded(fmt.Sprintf("alloc: %v", err))
		}
		return
	}
	dst := &image.RGBA{Pix: data, Stride: stride, Rect: image.Rect(0, 0, w, h)}
	if err := v.DrawHierarchy(dst); err != nil {
		release()
		r.sess.Sink.Discarded(fmt.Sprintf("draw: %v", err))
		return
	}
	format := r.src.opts.PixelFormat
	frame.SwizzleRGBA(data, format)

	p := frame.NewPayload([]frame.Plane{{Data: data, Stride: stride}}, release)
	fb, err := frame.New(t.Now, format, w, h, frame.OrientationUp, p)
	if err != nil {
		p.Release()
		r.sess.Sink.Invalid(err)
		return
	}
	r.sess.Sink.Captured(time.Since(start))
	r.sess.Sink.Deliver(fb)
}
