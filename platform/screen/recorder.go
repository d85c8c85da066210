package screen

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

// ErrRecording is returned by StartCapture while a recording runs.
var ErrRecording = errors.New("screen: recorder already running")

// RecorderOptions configures a Recorder. Zero fields take defaults.
type RecorderOptions struct {
	Region    image.Rectangle
	FrameRate int
	Clock     pacing.Clock
	Logger    *slog.Logger
	// Screen and Grab override the platform screen, for tests.
	Screen func() (image.Rectangle, error)
	Grab   func(dst *image.RGBA, r image.Rectangle) error
}

// Recorder pushes BGRA video samples of a screen region from its own
// goroutine, like an OS screen recorder would.
type Recorder struct {
	opts   RecorderOptions
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewRecorder returns an idle recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 5
	}
	if opts.Clock == nil {
		opts.Clock = pacing.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Screen == nil {
		opts.Screen = Bounds
	}
	if opts.Grab == nil {
		opts.Grab = grabInto
	}
	return &Recorder{opts: opts, logger: opts.Logger}
}

// Available reports whether the screen can be resolved.
func (r *Recorder) Available() bool {
	_, err := r.region()
	return err == nil
}

// Format is the format the recorder produces.
func (r *Recorder) Format() frame.FormatDescriptor {
	region, err := r.region()
	if err != nil {
		return frame.FormatDescriptor{}
	}
	return frame.FormatDescriptor{Width: region.Dx(), Height: region.Dy(), FrameRate: r.opts.FrameRate, PixelFormat: frame.PixelFormat32BGRA}
}

func (r *Recorder) region() (image.Rectangle, error) {
	return resolve(r.opts.Region, r.opts.Screen)
}

func (r *Recorder) StartCapture(h capture.SampleHandler) error {
	region, err := r.region()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return ErrRecording
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(region, h, r.stop, r.done)
	r.logger.Info("screen recorder started", "region", region.String(), "fps", r.opts.FrameRate)
	return nil
}

// StopCapture stops the goroutine and waits for it. No handler call happens
// after it returns.
func (r *Recorder) StopCapture() error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	r.logger.Info("screen recorder stopped")
	return nil
}

func (r *Recorder) loop(region image.Rectangle, h capture.SampleHandler, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / time.Duration(r.opts.FrameRate))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sb, err := r.grab(region)
			h(sb, capture.SampleVideo, err)
		}
	}
}

func (r *Recorder) grab(region image.Rectangle) (*capture.SampleBuffer, error) {
	w, hgt := region.Dx(), region.Dy()
	stride := w * 4
	data, release, err := frame.Alloc(stride * hgt)
	if err != nil {
		return nil, err
	}
	now := r.opts.Clock.Now()
	dst := &image.RGBA{Pix: data, Stride: stride, Rect: image.Rect(0, 0, w, hgt)}
	if err := r.opts.Grab(dst, region); err != nil {
		release()
		return nil, err
	}
	frame.SwizzleRGBA(data, frame.PixelFormat32BGRA)
	p := frame.NewPayload([]frame.Plane{{Data: data, Stride: stride}}, release)
	return &capture.SampleBuffer{
		PresentationTime: frame.MicrosTime(now),
		Image:            &capture.ImageBuffer{Format: frame.PixelFormat32BGRA, Width: w, Height: hgt, Payload: p},
		Orientation:      frame.OrientationUp,
	}, nil
}
