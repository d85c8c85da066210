package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/frame"
)

// SampleType tags recorder output.
type SampleType int

const (
	SampleVideo SampleType = iota
	SampleAppAudio
	SampleMicAudio
)

func (t SampleType) String() string {
	switch t {
	case SampleVideo:
		return "video"
	case SampleAppAudio:
		return "app-audio"
	case SampleMicAudio:
		return "mic-audio"
	}
	return "unknown"
}

// SampleBuffer is one recorder sample. Audio samples carry no image.
type SampleBuffer struct {
	PresentationTime frame.Time
	Image            *ImageBuffer
	Orientation      frame.Orientation
}

// Release drops the sample's image reference. Nil-safe.
func (sb *SampleBuffer) Release() {
	if sb != nil {
		sb.Image.Release()
	}
}

// SampleHandler receives recorder output on an arbitrary goroutine and takes
// ownership of the sample.
type SampleHandler func(sb *SampleBuffer, typ SampleType, err error)

// Recorder is an external capture facility that pushes samples.
type Recorder interface {
	Available() bool
	StartCapture(h SampleHandler) error
	StopCapture() error
}

// PushOptions configures a PushSource.
type PushOptions struct {
	// Format is the declared capture format, normally the screen size.
	Format frame.FormatDescriptor
	Logger *slog.Logger
}

// PushSource repackages recorder video samples as frame buffers. It has no
// pacing timer: sample arrival is the trigger.
type PushSource struct {
	recorder Recorder
	format   frame.FormatDescriptor
	logger   *slog.Logger

	mu  sync.Mutex
	run *pushRun

	recorderErrors atomic.Uint64
	ignored        atomic.Uint64
}

// NewPushSource wraps rec.
func NewPushSource(rec Recorder, opts PushOptions) *PushSource {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PushSource{recorder: rec, format: opts.Format, logger: logger}
}

func (p *PushSource) Formats() []frame.FormatDescriptor {
	return []frame.FormatDescriptor{p.format}
}

func (p *PushSource) Screencast() bool { return true }

// RecorderErrors counts error callbacks from the recorder.
func (p *PushSource) RecorderErrors() uint64 { return p.recorderErrors.Load() }

// Ignored counts audio samples dropped at this layer.
func (p *PushSource) Ignored() uint64 { return p.ignored.Load() }

func (p *PushSource) Start(s Session) error {
	if p.recorder == nil || !p.recorder.Available() {
		return ErrRecorderUnavailable
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return nil
	}
	r := &pushRun{src: p, sess: s}
	r.live.Store(true)
	p.run = r
	if err := p.recorder.StartCapture(r.handle); err != nil {
		r.live.Store(false)
		p.run = nil
		return fmt.Errorf("%w: %v", ErrRecorderUnavailable, err)
	}
	return nil
}

func (p *PushSource) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()
	if r == nil {
		return
	}
	r.live.Store(false)
	if err := p.recorder.StopCapture(); err != nil {
		p.logger.Warn("recorder stop failed", "error", err)
	}
}

type pushRun struct {
	src  *PushSource
	sess Session
	live atomic.Bool
}

func (r *pushRun) handle(sb *SampleBuffer, typ SampleType, err error) {
	if err != nil {
		r.src.recorderErrors.Add(1)
		r.src.logger.Warn("recorder sample error", "type", typ.String(), "error", err)
		sb.Release()
		return
	}
	if sb == nil {
		return
	}
	if typ != SampleVideo {
		r.src.ignored.Add(1)
		sb.Release()
		return
	}
	if !r.live.Load() || !r.sess.Queue.Async(func() { r.deliver(sb) }) {
		sb.Release()
	}
}

func (r *pushRun) deliver(sb *SampleBuffer) {
	if !r.live.Load() {
		sb.Release()
		return
	}
	img := sb.Image
	if img == nil {
		r.sess.Sink.Discarded("video sample without image")
		return
	}
	start := time.Now()
	ts := time.Duration(sb.PresentationTime.Micros()) * time.Microsecond
	fb, err := frame.New(ts, img.Format, img.Width, img.Height, sb.Orientation, img.Payload)
	if err != nil {
		img.Release()
		r.sess.Sink.Invalid(err)
		return
	}
	r.sess.Sink.Captured(time.Since(start))
	r.sess.Sink.Forward(fb)
}
