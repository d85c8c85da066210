package media

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var barColors = []color.RGBA{
	{235, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 235, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{235, 16, 16, 255},
	{16, 16, 235, 255},
}

// TestPattern returns n frames of colour bars with a moving marker and the
// frame number drawn in the corner.
func TestPattern(width, height, n int) ([]image.Image, error) {
	if width <= 0 || height <= 0 || n <= 0 {
		return nil, fmt.Errorf("media: invalid pattern %dx%d x%d", width, height, n)
	}
	face, err := labelFace(float64(height) / 12)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	frames := make([]image.Image, n)
	barW := (width + len(barColors) - 1) / len(barColors)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for b, c := range barColors {
			r := image.Rect(b*barW, 0, (b+1)*barW, height)
			draw.Draw(img, r.Intersect(img.Rect), &image.Uniform{c}, image.Point{}, draw.Src)
		}
		mx := (i * width / n) % width
		marker := image.Rect(mx, height*3/4, mx+width/20+1, height)
		draw.Draw(img, marker.Intersect(img.Rect), &image.Uniform{color.Black}, image.Point{}, draw.Src)

		d := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: face}
		d.Dot = fixed.P(width/40+1, face.Metrics().Ascent.Round()+height/40)
		d.DrawString(fmt.Sprintf("%04d", i))
		frames[i] = img
	}
	return frames, nil
}

func labelFace(size float64) (font.Face, error) {
	if size < 8 {
		size = 8
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}
