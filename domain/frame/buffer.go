package frame

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBuffer is returned when a Buffer cannot be built from the
// supplied geometry and payload.
var ErrInvalidBuffer = errors.New("frame: invalid buffer")

// Buffer is one timed image moving through the pipeline. Its fields never
// change after New; ownership moves between stages by handing over the
// pointer, and every holder that called Retain must call Release.
type Buffer struct {
	// Timestamp is the presentation time on the source's monotonic timeline.
	Timestamp   time.Duration
	Format      PixelFormat
	Width       int
	Height      int
	Orientation Orientation

	payload *Payload
}

// New validates the payload against format and dimensions. On success the
// Buffer takes over the caller's payload reference. On failure the caller
// still owns the payload and must release it.
func New(ts time.Duration, format PixelFormat, width, height int, o Orientation, p *Payload) (*Buffer, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidBuffer)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: pixel format %s", ErrInvalidBuffer, format)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, width, height)
	}
	if p.PlaneCount() != format.PlaneCount() {
		return nil, fmt.Errorf("%w: %s needs %d planes, got %d", ErrInvalidBuffer, format, format.PlaneCount(), p.PlaneCount())
	}
	for i := 0; i < p.PlaneCount(); i++ {
		minStride, rows := format.PlaneSize(i, width, height)
		pl := p.Plane(i)
		if pl.Stride < minStride {
			return nil, fmt.Errorf("%w: plane %d stride %d < %d", ErrInvalidBuffer, i, pl.Stride, minStride)
		}
		if need := pl.Stride*(rows-1) + minStride; len(pl.Data) < need {
			return nil, fmt.Errorf("%w: plane %d has %d bytes, need %d", ErrInvalidBuffer, i, len(pl.Data), need)
		}
	}
	return &Buffer{Timestamp: ts, Format: format, Width: width, Height: height, Orientation: o, payload: p}, nil
}

// Payload exposes the pixel memory for reading.
func (b *Buffer) Payload() *Payload { return b.payload }

// Plane returns plane i of the payload.
func (b *Buffer) Plane(i int) Plane { return b.payload.Plane(i) }

// Retain adds a holder and returns b.
func (b *Buffer) Retain() *Buffer {
	b.payload.Retain()
	return b
}

// Release drops one holder. Nil-safe.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.payload.Release()
}

// SameFormat reports whether b matches the given dimensions and pixel format.
func (b *Buffer) SameFormat(width, height int, format PixelFormat) bool {
	return b.Width == width && b.Height == height && b.Format == format
}

// Descriptor returns a FormatDescriptor for b at the given frame rate.
func (b *Buffer) Descriptor(frameRate int) FormatDescriptor {
	return FormatDescriptor{Width: b.Width, Height: b.Height, FrameRate: frameRate, PixelFormat: b.Format}
}
