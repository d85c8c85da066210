package images

import (
	"bytes"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/render"
)

// EncodePNG encodes an image to PNG bytes. Errors are ignored and may return an empty slice.
func EncodePNG(img image.Image) []byte {
	if img == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// ScaleToFit scales src so that it fits within maxW x maxH preserving aspect
// ratio. If the source already fits, the original is returned.
func ScaleToFit(src image.Image, maxW, maxH int) image.Image {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return src
	}
	if maxW < 1 {
		maxW = 1
	}
	if maxH < 1 {
		maxH = 1
	}
	r := render.GravityResizeAspect.Placement(b.Dx(), b.Dy(), image.Rect(0, 0, maxW, maxH))
	dst := image.NewRGBA(image.Rect(0, 0, max(r.Dx(), 1), max(r.Dy(), 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, src, b, draw.Src, nil)
	return dst
}

// Compose draws src onto a w x h black canvas placed according to g.
// Aspect-fill content is cropped at the canvas edges.
func Compose(src image.Image, w, h int, g render.Gravity) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Rect, image.Black, image.Point{}, draw.Src)
	if src == nil {
		return dst
	}
	b := src.Bounds()
	r := g.Placement(b.Dx(), b.Dy(), dst.Rect)
	if r.Empty() {
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, r, src, b, draw.Over, nil)
	return dst
}

// Frame renders buf upright into a w x h canvas for display.
func Frame(buf *frame.Buffer, w, h int, g render.Gravity) (*image.RGBA, error) {
	rgba, err := ToRGBA(buf)
	if err != nil {
		return nil, err
	}
	return Compose(Orient(rgba, buf.Orientation), w, h, g), nil
}
