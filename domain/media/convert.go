package media

import (
	"fmt"
	"image"
	"image/color"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"

	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/frame"
)

const renditionCacheSize = 16

type renditionKey struct {
	index, width, height int
}

// converter renders source images into output buffers. Scaled RGBA
// renditions are kept in a small LRU so looping sequences only scale each
// frame once per output size. Not safe for concurrent use.
type converter struct {
	renditions *lru.Cache[renditionKey, *image.RGBA]
}

func newConverter() *converter {
	cache, _ := lru.New[renditionKey, *image.RGBA](renditionCacheSize)
	return &converter{renditions: cache}
}

func (c *converter) rendition(index int, src image.Image, w, h int) *image.RGBA {
	key := renditionKey{index: index, width: w, height: h}
	if img, ok := c.renditions.Get(key); ok {
		return img
	}
	sb := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if sb.Dx() == w && sb.Dy() == h {
		draw.Draw(img, img.Rect, src, sb.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(img, img.Rect, src, sb, draw.Src, nil)
	}
	c.renditions.Add(key, img)
	return img
}

func (c *converter) convert(index int, src image.Image, s capture.OutputSettings) (*capture.ImageBuffer, error) {
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = src.Bounds().Dx(), src.Bounds().Dy()
	}
	format := s.PixelFormat
	if format == 0 {
		format = frame.PixelFormat32BGRA
	}
	rgba := c.rendition(index, src, w, h)

	switch {
	case format.Packed():
		return packed(rgba, format)
	case format.BiPlanar():
		return biPlanar(rgba, format == frame.PixelFormatYUV420BiPlanarVideoRange)
	}
	return nil, fmt.Errorf("media: unsupported output format %s", format)
}

func packed(rgba *image.RGBA, format frame.PixelFormat) (*capture.ImageBuffer, error) {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	stride := w * 4
	data, release, err := frame.Alloc(stride * h)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+stride]
		dst := data[y*stride : (y+1)*stride]
		for x := 0; x < stride; x += 4 {
			r, g, b, a := src[x], src[x+1], src[x+2], src[x+3]
			if format == frame.PixelFormat32ARGB {
				dst[x], dst[x+1], dst[x+2], dst[x+3] = a, r, g, b
			} else {
				dst[x], dst[x+1], dst[x+2], dst[x+3] = b, g, r, a
			}
		}
	}
	p := frame.NewPayload([]frame.Plane{{Data: data, Stride: stride}}, release)
	return &capture.ImageBuffer{Format: format, Width: w, Height: h, Payload: p}, nil
}

// biPlanar converts to NV12 with BT.601 coefficients. Chroma is the average
// of each 2x2 block.
func biPlanar(rgba *image.RGBA, videoRange bool) (*capture.ImageBuffer, error) {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	format := frame.PixelFormatYUV420BiPlanarFullRange
	if videoRange {
		format = frame.PixelFormatYUV420BiPlanarVideoRange
	}
	yStride, yRows := format.PlaneSize(0, w, h)
	cStride, cRows := format.PlaneSize(1, w, h)
	ySize := yStride * yRows
	data, release, err := frame.Alloc(ySize + cStride*cRows)
	if err != nil {
		return nil, err
	}
	yPlane, cPlane := data[:ySize], data[ySize:]

	for cy := 0; cy < cRows; cy++ {
		for cx := 0; cx < cStride/2; cx++ {
			var sr, sg, sb, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= h {
					continue
				}
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= w {
						continue
					}
					i := y*rgba.Stride + x*4
					r, g, b := rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
					yPlane[y*yStride+x] = luma(r, g, b, videoRange)
					sr, sg, sb, n = sr+int(r), sg+int(g), sb+int(b), n+1
				}
			}
			u, v := chroma(uint8(sr/n), uint8(sg/n), uint8(sb/n), videoRange)
			cPlane[cy*cStride+cx*2] = u
			cPlane[cy*cStride+cx*2+1] = v
		}
	}
	p := frame.NewPayload([]frame.Plane{
		{Data: yPlane, Stride: yStride},
		{Data: cPlane, Stride: cStride},
	}, release)
	return &capture.ImageBuffer{Format: format, Width: w, Height: h, Payload: p}, nil
}

func luma(r, g, b uint8, videoRange bool) uint8 {
	if !videoRange {
		y, _, _ := color.RGBToYCbCr(r, g, b)
		return y
	}
	return clamp8(16 + (65.481*float64(r)+128.553*float64(g)+24.966*float64(b))/255)
}

func chroma(r, g, b uint8, videoRange bool) (cb, cr uint8) {
	if !videoRange {
		_, cb, cr = color.RGBToYCbCr(r, g, b)
		return cb, cr
	}
	fr, fg, fb := float64(r), float64(g), float64(b)
	cb = clamp8(128 + (-37.797*fr-74.203*fg+112*fb)/255)
	cr = clamp8(128 + (112*fr-93.786*fg-18.214*fb)/255)
	return cb, cr
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
