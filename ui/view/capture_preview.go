package view

import (
	"image"

	"github.com/soocke/frame-pipeline-go/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// CapturePreview shows the renderer output in a single label. Frames arrive
// already composed to Size().
type CapturePreview interface {
	UpdatePreview(img image.Image)
	PreviewReset()
	Size() (int, int)
}

type capturePreview struct {
	label     *LabelWidget
	width     int
	height    int
	prevPhoto *Img // last Tk photo, deleted before it is replaced
}

// NewCapturePreview creates the preview label spanning columns 0-3 of row.
func NewCapturePreview(row, width, height int) CapturePreview {
	v := &capturePreview{width: max(width, 50), height: max(height, 50)}
	v.prevPhoto = NewPhoto(Data(v.placeholder()))
	v.label = Label(Image(v.prevPhoto), Borderwidth(1), Relief("sunken"))
	Grid(v.label, Row(row), Column(0), Columnspan(4), Sticky("nsew"), Padx("0.4m"), Pady("0.4m"))
	return v
}

func (v *capturePreview) placeholder() []byte {
	return images.EncodePNG(images.Compose(nil, v.width, v.height, 0))
}

func (v *capturePreview) Size() (int, int) { return v.width, v.height }

func (v *capturePreview) UpdatePreview(img image.Image) {
	if v.label == nil || img == nil {
		return
	}
	v.replace(images.EncodePNG(img))
}

func (v *capturePreview) PreviewReset() {
	if v.label == nil {
		return
	}
	v.replace(v.placeholder())
}

func (v *capturePreview) replace(png []byte) {
	if v.prevPhoto != nil {
		v.prevPhoto.Delete()
	}
	v.prevPhoto = NewPhoto(Data(png))
	v.label.Configure(Image(v.prevPhoto))
}
