package capture

import (
	"image"
	"math"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/frame"
)

// ImageBuffer is raw pixel memory handed over by an upstream. Whoever holds
// it owns one reference to Payload.
type ImageBuffer struct {
	Format  frame.PixelFormat
	Width   int
	Height  int
	Payload *frame.Payload
}

// Release drops the holder's payload reference. Nil-safe.
func (ib *ImageBuffer) Release() {
	if ib != nil {
		ib.Payload.Release()
	}
}

// OutputSettings asks an upstream for buffers of a given size and format.
// Zero dimensions mean native size.
type OutputSettings struct {
	Width       int
	Height      int
	PixelFormat frame.PixelFormat
}

// TimelineObserver receives upstream notifications on an arbitrary goroutine.
type TimelineObserver interface {
	// MediaDataWillChange signals that a new buffer may be available soon.
	MediaDataWillChange()
	// SequenceFlushed signals a discontinuity such as a seek.
	SequenceFlushed()
}

// Timeline is a queryable upstream media output, such as a player.
type Timeline interface {
	PresentationSize() (width, height int)
	ConfigureOutput(s OutputSettings)
	ItemTimeForHostTime(host time.Duration) frame.Time
	HasNewBuffer(itemTime frame.Time) bool
	// CopyBuffer returns the buffer for itemTime and the time it should be
	// displayed. The caller owns the returned buffer.
	CopyBuffer(itemTime frame.Time) (buf *ImageBuffer, displayTime frame.Time, ok bool)
	// Observe registers o until the returned cancel is called.
	Observe(o TimelineObserver) (cancel func())
	// RequestMediaDataChange asks for one MediaDataWillChange notification
	// advance ahead of new data.
	RequestMediaDataChange(advance time.Duration)
}

// FitAspect returns the largest rectangle with the aspect ratio of w x h
// centred inside bounds.
func FitAspect(w, h int, bounds image.Rectangle) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{}
	}
	scale := math.Min(float64(bw)/float64(w), float64(bh)/float64(h))
	fw := int(math.Round(float64(w) * scale))
	fh := int(math.Round(float64(h) * scale))
	x := bounds.Min.X + (bw-fw)/2
	y := bounds.Min.Y + (bh-fh)/2
	return image.Rect(x, y, x+fw, y+fh)
}
