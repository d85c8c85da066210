package capture

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

const (
	defaultPullMaxDimension   = 960
	defaultPullSuspendTimeout = time.Second
	defaultPullNotifyAdvance  = 20 * time.Millisecond
)

// DefaultPullFormat is the format a pull source declares unless configured.
var DefaultPullFormat = frame.FormatDescriptor{
	Width:       640,
	Height:      360,
	FrameRate:   30,
	PixelFormat: frame.PixelFormatYUV420BiPlanarFullRange,
}

// PullOptions configures a PullSource. Zero fields take defaults.
type PullOptions struct {
	Pacing pacing.Config
	Clock  pacing.Clock
	// MaxDimension bounds the output; larger content is downscaled to fit a
	// MaxDimension square. Negative disables downscaling.
	MaxDimension int
	// SuspendTimeout pauses the timer after this long without a new buffer.
	// Negative disables suspension.
	SuspendTimeout time.Duration
	// NotifyAdvance is how early a media change notification is requested.
	NotifyAdvance time.Duration
	Format        frame.FormatDescriptor
	NewTimer      TimerFactory
	Logger        *slog.Logger
}

func (o PullOptions) withDefaults() PullOptions {
	if o.Clock == nil {
		o.Clock = pacing.SystemClock()
	}
	if o.MaxDimension == 0 {
		o.MaxDimension = defaultPullMaxDimension
	}
	if o.SuspendTimeout == 0 {
		o.SuspendTimeout = defaultPullSuspendTimeout
	}
	if o.NotifyAdvance <= 0 {
		o.NotifyAdvance = defaultPullNotifyAdvance
	}
	if o.Format == (frame.FormatDescriptor{}) {
		o.Format = DefaultPullFormat
	}
	if o.NewTimer == nil {
		o.NewTimer = defaultTimerFactory
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// PullSource fetches buffers from a Timeline on every pacing tick.
type PullSource struct {
	timeline Timeline
	opts     PullOptions
	logger   *slog.Logger

	mu  sync.Mutex
	run *pullRun

	regressions atomic.Uint64
}

// NewPullSource prepares tl for output. A nil timeline yields a source
// whose Start fails with ErrNoTimeline.
func NewPullSource(tl Timeline, opts PullOptions) *PullSource {
	opts = opts.withDefaults()
	p := &PullSource{timeline: tl, opts: opts, logger: opts.Logger}
	if tl != nil {
		p.configureOutput()
	}
	return p
}

func (p *PullSource) configureOutput() {
	w, h := p.timeline.PresentationSize()
	settings := OutputSettings{PixelFormat: frame.PixelFormatYUV420BiPlanarVideoRange}
	max := p.opts.MaxDimension
	if max > 0 && (w > max || h > max) {
		r := FitAspect(w, h, image.Rect(0, 0, max, max))
		settings.Width, settings.Height = r.Dx(), r.Dy()
		p.logger.Info("requesting downscaled output", "width", w, "height", h, "out_width", settings.Width, "out_height", settings.Height)
	}
	p.timeline.ConfigureOutput(settings)
}

func (p *PullSource) Formats() []frame.FormatDescriptor {
	return []frame.FormatDescriptor{p.opts.Format}
}

func (p *PullSource) Screencast() bool { return false }

// Regressions counts buffers dropped because their presentation time went
// backwards without a flush.
func (p *PullSource) Regressions() uint64 { return p.regressions.Load() }

func (p *PullSource) Start(s Session) error {
	if p.timeline == nil {
		return ErrNoTimeline
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return nil
	}
	timer, err := p.opts.NewTimer(p.opts.Pacing, s.Queue, p.opts.Clock)
	if err != nil {
		return err
	}
	r := &pullRun{src: p, sess: s, timer: timer, lastFrameAt: p.opts.Clock.Now()}
	r.live.Store(true)
	if err := timer.Start(r.onTick); err != nil {
		timer.Stop()
		return err
	}
	r.cancelObserve = p.timeline.Observe(r)
	p.run = r
	return nil
}

func (p *PullSource) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()
	if r == nil {
		return
	}
	r.live.Store(false)
	r.timer.Stop()
	if r.cancelObserve != nil {
		r.cancelObserve()
	}
}

// pullRun is one session. Fields below live are touched only on the
// session queue.
type pullRun struct {
	src           *PullSource
	sess          Session
	timer         pacing.Timer
	cancelObserve func()
	live          atomic.Bool

	last        frame.Time
	lastFrameAt time.Duration
	suspended   bool
}

func (r *pullRun) onTick(t pacing.Tick) {
	if !r.live.Load() {
		return
	}
	item := r.src.timeline.ItemTimeForHostTime(t.Target)
	if r.output(item, t.Now) {
		return
	}
	r.sess.Sink.Skipped()
	if timeout := r.src.opts.SuspendTimeout; timeout > 0 && t.Now-r.lastFrameAt >= timeout {
		r.suspend()
	}
}

// output pulls the buffer for item if one is ready. It reports whether the
// upstream had one.
func (r *pullRun) output(item frame.Time, now time.Duration) bool {
	tl := r.src.timeline
	if !tl.HasNewBuffer(item) {
		return false
	}
	start := time.Now()
	buf, display, ok := tl.CopyBuffer(item)
	if !ok || buf == nil {
		return false
	}
	r.lastFrameAt = now
	if !display.Valid() {
		display = item
	}
	if r.last.Valid() && display.Compare(r.last) < 0 {
		buf.Release()
		r.src.regressions.Add(1)
		r.sess.Sink.Discarded("timestamp regression")
		r.resume()
		return true
	}
	r.last = display

	fb, err := frame.New(display.Duration(), buf.Format, buf.Width, buf.Height, frame.OrientationUp, buf.Payload)
	if err != nil {
		buf.Release()
		r.sess.Sink.Invalid(err)
		return true
	}
	r.sess.Sink.Captured(time.Since(start))
	r.sess.Sink.Deliver(fb)
	r.resume()
	return true
}

func (r *pullRun) suspend() {
	if r.suspended {
		return
	}
	r.suspended = true
	r.timer.Pause()
	r.src.timeline.RequestMediaDataChange(r.src.opts.NotifyAdvance)
	r.sess.Logger.Debug("pull output suspended")
}

func (r *pullRun) resume() {
	if !r.suspended {
		return
	}
	r.suspended = false
	r.timer.Resume()
}

// MediaDataWillChange pulls at once when a buffer is already waiting,
// otherwise it re-arms the timer.
func (r *pullRun) MediaDataWillChange() {
	r.sess.Queue.Async(func() {
		if !r.live.Load() {
			return
		}
		now := r.src.opts.Clock.Now()
		item := r.src.timeline.ItemTimeForHostTime(now)
		if r.output(item, now) {
			return
		}
		r.lastFrameAt = now
		r.resume()
	})
}

// SequenceFlushed accepts the next buffer regardless of its time.
func (r *pullRun) SequenceFlushed() {
	r.sess.Queue.Async(func() {
		if !r.live.Load() {
			return
		}
		r.last = frame.InvalidTime
		r.sess.Logger.Debug("pull output sequence flushed")
	})
}
