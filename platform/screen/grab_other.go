//go:build !windows

package screen

import (
	"image"
	"image/draw"

	"github.com/vova616/screenshot"
)

func grabInto(dst *image.RGBA, r image.Rectangle) error {
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return err
	}
	draw.Draw(dst, dst.Rect, img, img.Rect.Min, draw.Src)
	return nil
}
