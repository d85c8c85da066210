package capture

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
)

const captureStatsLogInterval = 5 * time.Second

// Options configures a Capturer.
type Options struct {
	Logger *slog.Logger
	// Debug turns frame construction failures into assertions.
	Debug bool
	// Fatal receives debug assertions. The default panics with
	// dispatch.Fatal, which the capture queue re-raises.
	Fatal func(err error)
	// StatsInterval overrides the periodic stats log interval.
	StatsInterval time.Duration
}

// Capturer wraps one Source behind the start/stop/deliver contract and owns
// the serial queue pull and push sources deliver on. Use NewCapturer.
type Capturer struct {
	id     string
	source Source
	queue  *dispatch.SerialQueue
	logger *slog.Logger
	debug  bool
	fatal  func(err error)

	// opMu serialises StartCapture, StopCapture and Close.
	opMu   sync.Mutex
	closed bool
	state  atomic.Int32
	frozen atomic.Pointer[[]frame.FormatDescriptor]

	// mu is held for reading by every delivery and for writing while the
	// consumer is swapped, so StopCapture drains in-flight deliveries.
	mu       sync.RWMutex
	consumer Consumer
	gen      uint64

	captures      atomic.Uint64
	delivered     atomic.Uint64
	skipped       atomic.Uint64
	dropped       atomic.Uint64
	backpressured atomic.Uint64
	discarded     atomic.Uint64
	invalid       atomic.Uint64
	captureNanos  atomic.Uint64
	sequence      atomic.Uint64
	lastCapture   atomic.Int64
	lastLog       atomic.Int64
	statsInterval time.Duration
}

// NewCapturer wraps src.
func NewCapturer(src Source, opts Options) *Capturer {
	id := uuid.New().String()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("capturer", id)
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = captureStatsLogInterval
	}
	fatal := opts.Fatal
	if fatal == nil {
		fatal = func(err error) { panic(dispatch.Fatal{Err: err}) }
	}
	c := &Capturer{
		id:            id,
		fatal:         fatal,
		source:        src,
		queue:         dispatch.NewSerialQueue("capture."+id, logger),
		logger:        logger,
		debug:         opts.Debug,
		statsInterval: interval,
	}
	c.lastLog.Store(time.Now().UnixNano())
	return c
}

// ID returns the capturer instance id used in logs.
func (c *Capturer) ID() string { return c.id }

// State returns the current session state.
func (c *Capturer) State() State { return State(c.state.Load()) }

// IsScreencast reports whether the content is detail-optimised screen content.
func (c *Capturer) IsScreencast() bool { return c.source.Screencast() }

// SupportedFormats returns the declared formats. While a session runs the
// set captured at start is returned.
func (c *Capturer) SupportedFormats() []frame.FormatDescriptor {
	if f := c.frozen.Load(); f != nil {
		return append([]frame.FormatDescriptor(nil), (*f)...)
	}
	return c.source.Formats()
}

func (c *Capturer) supports(formats []frame.FormatDescriptor, want frame.FormatDescriptor) bool {
	for _, f := range formats {
		if f == want {
			return true
		}
	}
	return false
}

// StartCapture starts a session delivering to consumer. consumer is told
// exactly once whether the start succeeded; on failure the capturer stays
// idle. Starting a running capturer is a no-op.
func (c *Capturer) StartCapture(format frame.FormatDescriptor, consumer Consumer) error {
	if consumer == nil {
		return ErrNilConsumer
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		consumer.CaptureStarted(false)
		return ErrClosed
	}
	if c.State() == StateRunning {
		return nil
	}
	formats := c.source.Formats()
	if err := format.Validate(); err != nil || !c.supports(formats, format) {
		c.logger.Warn("capture start rejected", "format", format.String())
		consumer.CaptureStarted(false)
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	c.state.Store(int32(StateStarting))
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.consumer = consumer
	c.mu.Unlock()

	err := c.source.Start(Session{Format: format, Queue: c.queue, Sink: &sink{c: c, gen: gen}, Logger: c.logger})
	if err != nil {
		c.mu.Lock()
		c.consumer = nil
		c.gen++
		c.mu.Unlock()
		c.state.Store(int32(StateIdle))
		c.logger.Error("capture start failed", "format", format.String(), "error", err)
		consumer.CaptureStarted(false)
		return fmt.Errorf("capture: start %s: %w", format, err)
	}

	c.frozen.Store(&formats)
	// The acknowledgement happens under the write lock so no frame can
	// reach the consumer ahead of it.
	c.mu.Lock()
	c.state.Store(int32(StateRunning))
	consumer.CaptureStarted(true)
	c.mu.Unlock()
	c.logger.Info("capture started", "format", format.String(), "screencast", c.source.Screencast())
	return nil
}

// StopCapture ends the session. When it returns no delivery is in flight and
// none will start. Idempotent.
func (c *Capturer) StopCapture() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stopLocked()
}

func (c *Capturer) stopLocked() {
	if c.State() != StateRunning {
		return
	}
	c.state.Store(int32(StateStopping))
	c.source.Stop()
	c.mu.Lock()
	c.consumer = nil
	c.gen++
	c.mu.Unlock()
	c.frozen.Store(nil)
	c.state.Store(int32(StateIdle))
	c.logStats("capture stopped")
}

// Close stops any session, shuts the sample queue down and closes the
// source if it holds resources. Idempotent.
func (c *Capturer) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		return nil
	}
	c.stopLocked()
	c.closed = true
	c.queue.Close()
	if cl, ok := c.source.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Stats returns a snapshot of the capturer counters.
func (c *Capturer) Stats() Stats {
	captures := c.captures.Load()
	total := c.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	if ns := c.lastCapture.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	st := Stats{
		Captures:         captures,
		Delivered:        c.delivered.Load(),
		Skipped:          c.skipped.Load(),
		Dropped:          c.dropped.Load(),
		Backpressured:    c.backpressured.Load(),
		Discarded:        c.discarded.Load(),
		Invalid:          c.invalid.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
		Sequence:         c.sequence.Load(),
		State:            c.State(),
	}
	switch src := c.source.(type) {
	case *PullSource:
		st.Regressions = src.Regressions()
	case *PushSource:
		st.RecorderErrors = src.RecorderErrors()
		st.IgnoredSamples = src.Ignored()
	}
	return st
}

func (c *Capturer) logStats(msg string) {
	stats := c.Stats()
	c.logger.Debug(msg,
		"captures", stats.Captures,
		"delivered", stats.Delivered,
		"skipped", stats.Skipped,
		"dropped", stats.Dropped,
		"avg_capture", stats.AvgCapture,
	)
}

func (c *Capturer) maybeLogStats() {
	now := time.Now().UnixNano()
	last := c.lastLog.Load()
	if time.Duration(now-last) < c.statsInterval || !c.lastLog.CompareAndSwap(last, now) {
		return
	}
	c.logStats("capture.stats")
}

// sink binds deliveries to the session generation that created it, so work
// queued by an old session never reaches a newer consumer.
type sink struct {
	c   *Capturer
	gen uint64
}

func (s *sink) Deliver(b *frame.Buffer) bool { return s.deliver(b, true) }

func (s *sink) Forward(b *frame.Buffer) bool { return s.deliver(b, false) }

func (s *sink) deliver(b *frame.Buffer, checkReady bool) bool {
	c := s.c
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.consumer == nil || c.gen != s.gen || c.State() != StateRunning {
		c.dropped.Add(1)
		b.Release()
		return false
	}
	if r, ok := c.consumer.(ReadinessReporter); checkReady && ok && !r.ReadyForFrames() {
		c.backpressured.Add(1)
		b.Release()
		return false
	}
	c.sequence.Add(1)
	c.delivered.Add(1)
	c.consumer.ConsumeFrame(b)
	return true
}

func (s *sink) Captured(d time.Duration) {
	c := s.c
	c.captures.Add(1)
	if d > 0 {
		c.captureNanos.Add(uint64(d.Nanoseconds()))
	}
	c.lastCapture.Store(time.Now().UnixNano())
	c.maybeLogStats()
}

func (s *sink) Skipped() { s.c.skipped.Add(1) }

func (s *sink) Discarded(reason string) {
	s.c.discarded.Add(1)
	s.c.logger.Debug("frame discarded", "reason", reason)
}

func (s *sink) Invalid(err error) {
	s.c.invalid.Add(1)
	s.c.logger.Warn("frame construction failed", "error", err)
	if s.c.debug {
		s.c.fatal(fmt.Errorf("capture: could not build frame buffer: %w", err))
	}
}
