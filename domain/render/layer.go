package render

import (
	"fmt"
	"image"

	"github.com/soocke/frame-pipeline-go/domain/frame"
)

// OutputFormat describes the buffers currently flowing to the layer.
type OutputFormat struct {
	Width       int
	Height      int
	PixelFormat frame.PixelFormat
}

// Matches reports whether b can be described by f.
func (f *OutputFormat) Matches(b *frame.Buffer) bool {
	return f != nil && b.SameFormat(f.Width, f.Height, f.PixelFormat)
}

func (f *OutputFormat) String() string {
	if f == nil {
		return "<none>"
	}
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.PixelFormat)
}

// SampleBuffer is one enqueued frame with its display timing.
type SampleBuffer struct {
	// Frame is owned by the layer once enqueued; the layer releases it when
	// the image is replaced or flushed.
	Frame  *frame.Buffer
	Format *OutputFormat
	// PresentationTime is on the microsecond timescale.
	PresentationTime frame.Time
	// DisplayImmediately bypasses any reordering or delay in the layer.
	DisplayImmediately bool
}

// DisplayLayer is the display pipeline. Every method is called on the main
// queue.
type DisplayLayer interface {
	// Err reports a fault that stops the layer from rendering.
	Err() error
	ReadyForMoreMediaData() bool
	Enqueue(sb *SampleBuffer)
	// FlushAndRemoveImage drops queued samples and the displayed image.
	FlushAndRemoveImage()
}

// Gravity controls how video fills the layer bounds.
type Gravity int

const (
	GravityResizeAspect Gravity = iota
	GravityResizeAspectFill
	GravityResize
)

func (g Gravity) String() string {
	switch g {
	case GravityResizeAspect:
		return "aspect"
	case GravityResizeAspectFill:
		return "aspect-fill"
	case GravityResize:
		return "resize"
	}
	return "unknown"
}

// ParseGravity maps a config string to a Gravity. Unknown values fall back
// to GravityResizeAspect.
func ParseGravity(s string) Gravity {
	switch s {
	case "aspect-fill", "fill":
		return GravityResizeAspectFill
	case "resize", "stretch":
		return GravityResize
	}
	return GravityResizeAspect
}

// GravitySetter is implemented by layers that honour Gravity.
type GravitySetter interface {
	SetGravity(g Gravity)
}

// Placement returns where content of size w x h lands inside bounds.
func (g Gravity) Placement(w, h int, bounds image.Rectangle) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{}
	}
	if g == GravityResize {
		return bounds
	}
	sx, sy := float64(bw)/float64(w), float64(bh)/float64(h)
	s := sx
	if (g == GravityResizeAspect && sy < sx) || (g == GravityResizeAspectFill && sy > sx) {
		s = sy
	}
	fw, fh := int(float64(w)*s+0.5), int(float64(h)*s+0.5)
	x := bounds.Min.X + (bw-fw)/2
	y := bounds.Min.Y + (bh-fh)/2
	return image.Rect(x, y, x+fw, y+fh)
}
