package presenter

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/soocke/frame-pipeline-go/domain/render"
	"github.com/soocke/frame-pipeline-go/ui/images"
)

// ErrPreviewClosed is reported by a closed PreviewLayer.
var ErrPreviewClosed = errors.New("presenter: preview closed")

// PreviewLayer is the display layer the renderer enqueues into. Frames are
// composed to the preview size on the renderer's queue; the Tk loop picks up
// the newest one with Take. Older composed frames are overwritten.
type PreviewLayer struct {
	logger *slog.Logger

	mu      sync.Mutex
	width   int
	height  int
	gravity render.Gravity
	pending *image.RGBA
	flushed bool
	closed  bool

	composed    atomic.Uint64
	overwritten atomic.Uint64
	failed      atomic.Uint64
}

func NewPreviewLayer(width, height int, logger *slog.Logger) *PreviewLayer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &PreviewLayer{logger: logger}
	l.SetSize(width, height)
	return l
}

// SetSize changes the composed frame size. Sizes below 50 px are raised.
func (l *PreviewLayer) SetSize(w, h int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.width, l.height = max(w, 50), max(h, 50)
}

// Size returns the composed frame size.
func (l *PreviewLayer) Size() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.width, l.height
}

func (l *PreviewLayer) SetGravity(g render.Gravity) {
	l.mu.Lock()
	l.gravity = g
	l.mu.Unlock()
}

func (l *PreviewLayer) Gravity() render.Gravity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gravity
}

func (l *PreviewLayer) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrPreviewClosed
	}
	return nil
}

func (l *PreviewLayer) ReadyForMoreMediaData() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// Enqueue composes sb and releases its frame.
func (l *PreviewLayer) Enqueue(sb *render.SampleBuffer) {
	defer sb.Frame.Release()
	w, h := l.Size()
	img, err := images.Frame(sb.Frame, w, h, l.Gravity())
	if err != nil {
		l.failed.Add(1)
		l.logger.Warn("preview compose failed", "format", sb.Format.String(), "error", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.pending != nil {
		l.overwritten.Add(1)
	}
	l.pending = img
	l.flushed = false
	l.composed.Add(1)
}

func (l *PreviewLayer) FlushAndRemoveImage() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
	l.flushed = true
}

// Take returns the newest composed frame, if any, and whether the displayed
// image must be cleared first.
func (l *PreviewLayer) Take() (img *image.RGBA, flushed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	img, flushed = l.pending, l.flushed
	l.pending, l.flushed = nil, false
	return img, flushed
}

// Close stops accepting frames.
func (l *PreviewLayer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.pending = nil
}

// Counts returns composed, overwritten and failed frame counts.
func (l *PreviewLayer) Counts() (composed, overwritten, failed uint64) {
	return l.composed.Load(), l.overwritten.Load(), l.failed.Load()
}
