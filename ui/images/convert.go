package images

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/soocke/frame-pipeline-go/domain/frame"
)

// ErrUnsupported is returned for pixel formats the preview cannot show.
var ErrUnsupported = errors.New("images: unsupported pixel format")

// ToRGBA copies a frame buffer into a new RGBA image. Packed BGRA/ARGB and
// NV12 (full or video range) are supported.
func ToRGBA(b *frame.Buffer) (*image.RGBA, error) {
	if b == nil {
		return nil, errors.New("images: nil buffer")
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	switch {
	case b.Format.Packed():
		packedToRGBA(dst, b.Plane(0), b.Format == frame.PixelFormat32ARGB)
	case b.Format.BiPlanar():
		nv12ToRGBA(dst, b.Plane(0), b.Plane(1), b.Format == frame.PixelFormatYUV420BiPlanarVideoRange)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, b.Format)
	}
	return dst, nil
}

func packedToRGBA(dst *image.RGBA, p frame.Plane, argb bool) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < h; y++ {
		src := p.Data[y*p.Stride : y*p.Stride+w*4]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < len(src); x += 4 {
			if argb {
				row[x], row[x+1], row[x+2], row[x+3] = src[x+1], src[x+2], src[x+3], src[x]
			} else {
				row[x], row[x+1], row[x+2], row[x+3] = src[x+2], src[x+1], src[x], src[x+3]
			}
		}
	}
}

func nv12ToRGBA(dst *image.RGBA, yp, cp frame.Plane, videoRange bool) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < h; y++ {
		crow := (y / 2) * cp.Stride
		for x := 0; x < w; x++ {
			yy := yp.Data[y*yp.Stride+x]
			cb := cp.Data[crow+(x/2)*2]
			cr := cp.Data[crow+(x/2)*2+1]
			if videoRange {
				yy, cb, cr = expandLuma(yy), expandChroma(cb), expandChroma(cr)
			}
			r, g, b := color.YCbCrToRGB(yy, cb, cr)
			i := y*dst.Stride + x*4
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, 0xff
		}
	}
}

// expandLuma maps video range 16..235 onto 0..255.
func expandLuma(v uint8) uint8 {
	return clamp((float64(v) - 16) * 255 / 219)
}

// expandChroma maps video range 16..240 onto 0..255 around 128.
func expandChroma(v uint8) uint8 {
	return clamp(128 + (float64(v)-128)*255/224)
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// Orient returns img rotated and flipped so it displays upright given the
// orientation the producer tagged it with.
func Orient(img image.Image, o frame.Orientation) image.Image {
	switch o {
	case frame.OrientationDown:
		return imaging.Rotate180(img)
	case frame.OrientationLeft:
		return imaging.Rotate90(img)
	case frame.OrientationRight:
		return imaging.Rotate270(img)
	case frame.OrientationUpMirrored:
		return imaging.FlipH(img)
	case frame.OrientationDownMirrored:
		return imaging.FlipV(img)
	case frame.OrientationLeftMirrored:
		return imaging.Transpose(img)
	case frame.OrientationRightMirrored:
		return imaging.Transverse(img)
	}
	return img
}
