// Package render puts frame buffers on a display layer. All renderer state
// lives on the main queue; frames arriving from capture queues are
// marshalled there first.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
)

// ErrUnsupportedPixelFormat is returned for planar YUV input.
var ErrUnsupportedPixelFormat = errors.New("render: unsupported pixel format")

// State is the renderer lifecycle state.
type State int32

const (
	StateInactive State = iota
	StateActive
	StateBackgrounded
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateBackgrounded:
		return "backgrounded"
	}
	return "unknown"
}

// Stats counts renderer outcomes.
type Stats struct {
	Rendered      uint64
	Dropped       uint64
	Rejected      uint64
	FormatChanges uint64
	State         State
}

// VideoSize is the latest content geometry, for layout.
type VideoSize struct {
	Width       int
	Height      int
	Orientation frame.Orientation
}

// Options configures a Renderer.
type Options struct {
	Logger  *slog.Logger
	Gravity Gravity
	// OnVideoSize is called on the main queue when the content geometry
	// changes.
	OnVideoSize func(VideoSize)
}

// Renderer enqueues frames on a DisplayLayer. It implements the capture
// consumer contract so a capturer can feed it directly.
type Renderer struct {
	layer  DisplayLayer
	main   dispatch.Queue
	bus    *lifecycle.Bus
	logger *slog.Logger
	opts   Options

	// Main queue only.
	state  State
	format *OutputFormat
	size   VideoSize
	sub    *lifecycle.Subscription

	stateMirror   atomic.Int32
	sizeMirror    atomic.Pointer[VideoSize]
	rendered      atomic.Uint64
	dropped       atomic.Uint64
	rejected      atomic.Uint64
	formatChanges atomic.Uint64
}

// NewRenderer returns an inactive renderer. bus may be nil.
func NewRenderer(layer DisplayLayer, main dispatch.Queue, bus *lifecycle.Bus, opts Options) *Renderer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{layer: layer, main: main, bus: bus, logger: logger, opts: opts}
}

func (r *Renderer) setState(s State) {
	if r.state == s {
		return
	}
	r.logger.Debug("renderer state", "from", r.state.String(), "to", s.String())
	r.state = s
	r.stateMirror.Store(int32(s))
}

// Attach activates rendering and subscribes to lifecycle events. Main queue
// only. Idempotent.
func (r *Renderer) Attach() {
	if r.state != StateInactive {
		return
	}
	if gs, ok := r.layer.(GravitySetter); ok {
		gs.SetGravity(r.opts.Gravity)
	}
	if r.bus != nil {
		r.sub = r.bus.Subscribe(r.handleLifecycle)
		if r.bus.Background() {
			r.setState(StateBackgrounded)
			return
		}
	}
	r.setState(StateActive)
}

// Close detaches from lifecycle events and clears the layer. Main queue
// only. Idempotent.
func (r *Renderer) Close() {
	if r.state == StateInactive {
		return
	}
	r.sub.Cancel()
	r.sub = nil
	r.layer.FlushAndRemoveImage()
	r.format = nil
	r.setState(StateInactive)
}

// State returns the lifecycle state. Safe from any goroutine.
func (r *Renderer) State() State { return State(r.stateMirror.Load()) }

// Format returns the cached output format. Main queue only.
func (r *Renderer) Format() *OutputFormat { return r.format }

// VideoSize returns the latest content geometry. Safe from any goroutine.
func (r *Renderer) VideoSize() VideoSize {
	if s := r.sizeMirror.Load(); s != nil {
		return *s
	}
	return VideoSize{}
}

// Stats returns a snapshot of the counters. Safe from any goroutine.
func (r *Renderer) Stats() Stats {
	return Stats{
		Rendered:      r.rendered.Load(),
		Dropped:       r.dropped.Load(),
		Rejected:      r.rejected.Load(),
		FormatChanges: r.formatChanges.Load(),
		State:         r.State(),
	}
}

func (r *Renderer) handleLifecycle(e lifecycle.Event) {
	switch e {
	case lifecycle.DidEnterBackground:
		if r.state == StateActive {
			r.setState(StateBackgrounded)
			r.layer.FlushAndRemoveImage()
		}
	case lifecycle.WillEnterForeground:
		if r.state == StateBackgrounded {
			if err := r.layer.Err(); err != nil {
				r.logger.Warn("display layer failed while backgrounded", "error", err)
			}
			r.setState(StateActive)
		}
	case lifecycle.WillResignActive:
		if r.state != StateInactive {
			r.layer.FlushAndRemoveImage()
		}
	}
}

// CaptureStarted logs the capture acknowledgement.
func (r *Renderer) CaptureStarted(ok bool) {
	r.logger.Info("renderer source started", "ok", ok)
}

// ConsumeFrame marshals b onto the main queue for rendering.
func (r *Renderer) ConsumeFrame(b *frame.Buffer) {
	if !r.main.Async(func() { _ = r.RenderFrame(b) }) {
		r.dropped.Add(1)
		b.Release()
	}
}

// RenderFrame enqueues b on the layer, taking ownership of it. Frames that
// cannot be shown right now are dropped without error. Main queue only.
func (r *Renderer) RenderFrame(b *frame.Buffer) error {
	if r.state != StateActive {
		return r.drop(b)
	}
	if err := r.layer.Err(); err != nil {
		return r.drop(b)
	}
	if !r.layer.ReadyForMoreMediaData() {
		r.logger.Debug("display layer is not ready for more frames")
		return r.drop(b)
	}
	if b.Format.Planar() {
		r.rejected.Add(1)
		r.logger.Error("unsupported planar pixel format", "format", b.Format.String())
		b.Release()
		return fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, b.Format)
	}

	if !r.format.Matches(b) {
		r.format = &OutputFormat{Width: b.Width, Height: b.Height, PixelFormat: b.Format}
		r.formatChanges.Add(1)
		r.logger.Info("detected format change", "width", b.Width, "height", b.Height, "format", b.Format.String())
	}
	r.updateVideoSize(VideoSize{Width: b.Width, Height: b.Height, Orientation: b.Orientation})

	r.layer.Enqueue(&SampleBuffer{
		Frame:              b,
		Format:             r.format,
		PresentationTime:   frame.MicrosTime(b.Timestamp),
		DisplayImmediately: true,
	})
	r.rendered.Add(1)
	return nil
}

func (r *Renderer) drop(b *frame.Buffer) error {
	r.dropped.Add(1)
	b.Release()
	return nil
}

func (r *Renderer) updateVideoSize(s VideoSize) {
	if s == r.size {
		return
	}
	r.size = s
	r.sizeMirror.Store(&s)
	if r.opts.OnVideoSize != nil {
		r.opts.OnVideoSize(s)
	}
}
