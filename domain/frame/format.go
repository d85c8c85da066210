package frame

import (
	"errors"
	"fmt"
)

// PixelFormat is a FourCC pixel format tag.
type PixelFormat uint32

func fourCC(s string) PixelFormat {
	return PixelFormat(uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3]))
}

var (
	// PixelFormat32BGRA is packed 8-bit B,G,R,A.
	PixelFormat32BGRA = fourCC("BGRA")
	// PixelFormat32ARGB is packed 8-bit A,R,G,B.
	PixelFormat32ARGB = fourCC("ARGB")
	// PixelFormatYUV420BiPlanarFullRange is NV12 with full-range luma.
	PixelFormatYUV420BiPlanarFullRange = fourCC("420f")
	// PixelFormatYUV420BiPlanarVideoRange is NV12 with video-range luma (16-235).
	PixelFormatYUV420BiPlanarVideoRange = fourCC("420v")
	// PixelFormatYUV420PlanarFullRange is three-plane I420. Not produced by any
	// source; representable so renderers can reject it.
	PixelFormatYUV420PlanarFullRange = fourCC("f420")
	// PixelFormatYUV420PlanarVideoRange is three-plane I420, video range.
	PixelFormatYUV420PlanarVideoRange = fourCC("y420")
)

// String renders the 4-character tag, or hex when the code is not printable.
func (p PixelFormat) String() string {
	b := []byte{byte(p >> 24), byte(p >> 16), byte(p >> 8), byte(p)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(p))
		}
	}
	return string(b)
}

// Packed reports whether the format stores all components in one plane.
func (p PixelFormat) Packed() bool {
	return p == PixelFormat32BGRA || p == PixelFormat32ARGB
}

// BiPlanar reports whether the format is Y plane + interleaved CbCr plane.
func (p PixelFormat) BiPlanar() bool {
	return p == PixelFormatYUV420BiPlanarFullRange || p == PixelFormatYUV420BiPlanarVideoRange
}

// Planar reports whether the format is three-plane YUV.
func (p PixelFormat) Planar() bool {
	return p == PixelFormatYUV420PlanarFullRange || p == PixelFormatYUV420PlanarVideoRange
}

// Valid reports whether p is one of the known formats.
func (p PixelFormat) Valid() bool { return p.Packed() || p.BiPlanar() || p.Planar() }

// PlaneCount returns the number of planes the format uses.
func (p PixelFormat) PlaneCount() int {
	switch {
	case p.Packed():
		return 1
	case p.BiPlanar():
		return 2
	case p.Planar():
		return 3
	}
	return 0
}

// PlaneSize returns the minimum stride and row count of plane i for a
// width x height image.
func (p PixelFormat) PlaneSize(i, width, height int) (stride, rows int) {
	cw, ch := (width+1)/2, (height+1)/2
	switch {
	case p.Packed():
		return width * 4, height
	case p.BiPlanar():
		if i == 0 {
			return width, height
		}
		return cw * 2, ch
	case p.Planar():
		if i == 0 {
			return width, height
		}
		return cw, ch
	}
	return 0, 0
}

// Orientation tells downstream rendering how the pixels are rotated.
type Orientation int

const (
	OrientationUp Orientation = iota
	OrientationDown
	OrientationLeft
	OrientationRight
	OrientationUpMirrored
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRightMirrored
)

func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "up"
	case OrientationDown:
		return "down"
	case OrientationLeft:
		return "left"
	case OrientationRight:
		return "right"
	case OrientationUpMirrored:
		return "up-mirrored"
	case OrientationDownMirrored:
		return "down-mirrored"
	case OrientationLeftMirrored:
		return "left-mirrored"
	case OrientationRightMirrored:
		return "right-mirrored"
	}
	return "unknown"
}

// Mirrored reports whether the orientation includes a horizontal flip.
func (o Orientation) Mirrored() bool {
	return o >= OrientationUpMirrored && o <= OrientationRightMirrored
}

// FormatDescriptor is a capability a capturer declares before capture starts.
type FormatDescriptor struct {
	Width       int
	Height      int
	FrameRate   int
	PixelFormat PixelFormat
}

// Validate checks dimensions, frame rate and pixel format.
func (d FormatDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("frame: invalid dimensions %dx%d", d.Width, d.Height)
	}
	if d.FrameRate <= 0 {
		return fmt.Errorf("frame: invalid frame rate %d", d.FrameRate)
	}
	if !d.PixelFormat.Valid() {
		return errors.New("frame: unknown pixel format " + d.PixelFormat.String())
	}
	return nil
}

func (d FormatDescriptor) String() string {
	return fmt.Sprintf("%dx%d@%d %s", d.Width, d.Height, d.FrameRate, d.PixelFormat)
}
