// Package screen captures the desktop: a snapshot View over a screen region
// and a Recorder that pushes samples at a fixed rate.
package screen

import (
	"fmt"
	"image"
	"sync"

	"github.com/vova616/screenshot"
)

// Bounds returns the primary screen rectangle.
func Bounds() (image.Rectangle, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("screen: bounds: %w", err)
	}
	return r, nil
}

// resolve clips region to the screen reported by bounds. An empty region
// means the whole screen.
func resolve(region image.Rectangle, bounds func() (image.Rectangle, error)) (image.Rectangle, error) {
	screen, err := bounds()
	if err != nil {
		return image.Rectangle{}, err
	}
	if region.Empty() {
		return screen, nil
	}
	r := region.Intersect(screen)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("screen: region %v outside screen %v", region, screen)
	}
	return r, nil
}

// View is a capture.View over a fixed screen region.
type View struct {
	mu     sync.Mutex
	region image.Rectangle
	err    error
}

// NewView returns a view over region, or the whole screen when region is
// empty. A view whose region cannot be resolved reports itself detached.
func NewView(region image.Rectangle) *View {
	r, err := resolve(region, Bounds)
	return &View{region: r, err: err}
}

func (v *View) Attached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err == nil
}

func (v *View) Bounds() image.Rectangle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.region
}

// SetRegion retargets the view. Main queue only.
func (v *View) SetRegion(region image.Rectangle) {
	r, err := resolve(region, Bounds)
	v.mu.Lock()
	v.region, v.err = r, err
	v.mu.Unlock()
}

func (v *View) DrawHierarchy(dst *image.RGBA) error {
	v.mu.Lock()
	r, err := v.region, v.err
	v.mu.Unlock()
	if err != nil {
		return err
	}
	if dst.Rect.Dx() != r.Dx() || dst.Rect.Dy() != r.Dy() {
		return fmt.Errorf("screen: destination %v does not match region %v", dst.Rect, r)
	}
	return grabInto(dst, r)
}
