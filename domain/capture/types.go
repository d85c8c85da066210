package capture

import (
	"errors"
	"log/slog"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
)

var (
	// ErrNilConsumer is returned by StartCapture without a consumer.
	ErrNilConsumer = errors.New("capture: nil consumer")
	// ErrUnsupportedFormat means the requested format was not declared.
	ErrUnsupportedFormat = errors.New("capture: unsupported format")
	// ErrClosed is returned by StartCapture after Close.
	ErrClosed = errors.New("capture: capturer closed")
	// ErrRecorderUnavailable is the push source startup failure.
	ErrRecorderUnavailable = errors.New("capture: recorder unavailable")
	// ErrNoTargetView is the snapshot source startup failure.
	ErrNoTargetView = errors.New("capture: no target view")
	// ErrNoTimeline is the pull source startup failure.
	ErrNoTimeline = errors.New("capture: no timeline")
)

// State is the capture session state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Consumer receives the start acknowledgement and frames. Both methods may
// be called from any goroutine. ConsumeFrame takes ownership of the buffer
// and must Release it when done. Neither method may call StartCapture or
// StopCapture on the capturer that invoked it.
type Consumer interface {
	CaptureStarted(ok bool)
	ConsumeFrame(b *frame.Buffer)
}

// ReadinessReporter is implemented by consumers that apply backpressure.
// Frames arriving while ReadyForFrames is false are dropped.
type ReadinessReporter interface {
	ReadyForFrames() bool
}

// Sink is the capturer side of a running session, handed to the source.
type Sink interface {
	// Deliver forwards b to the consumer. Ownership of b always moves to
	// the sink; it is released when the frame cannot be delivered.
	Deliver(b *frame.Buffer) bool
	// Forward is Deliver without the consumer readiness check, for samples
	// an external producer has already committed to.
	Forward(b *frame.Buffer) bool
	// Captured records the time spent producing one buffer.
	Captured(d time.Duration)
	// Skipped records an attempt where nothing was available.
	Skipped()
	// Discarded records a buffer that was produced but not deliverable.
	Discarded(reason string)
	// Invalid reports a buffer that could not be constructed.
	Invalid(err error)
}

// Session is what a source receives on Start.
type Session struct {
	Format frame.FormatDescriptor
	// Queue is the capturer's serial sample queue.
	Queue  dispatch.Queue
	Sink   Sink
	Logger *slog.Logger
}

// Source is one capture variant. The capturer serialises Start and Stop.
type Source interface {
	Formats() []frame.FormatDescriptor
	Screencast() bool
	// Start begins producing into s. An error is a startup failure and the
	// source must hold no session state afterwards.
	Start(s Session) error
	// Stop ends production. After Stop returns the source starts no new
	// deliveries; ones already running are drained by the capturer.
	Stop()
}
