package presenter

import "image"

// PreviewView shows composed frames.
type PreviewView interface {
	UpdatePreview(img image.Image)
	PreviewReset()
}

// PreviewPresenter moves frames from the preview layer to the view. Tick
// must run on the Tk thread.
type PreviewPresenter struct {
	layer *PreviewLayer
	view  PreviewView
	shown uint64
}

func NewPreviewPresenter(layer *PreviewLayer, view PreviewView) *PreviewPresenter {
	return &PreviewPresenter{layer: layer, view: view}
}

func (p *PreviewPresenter) Tick() {
	if p == nil || p.layer == nil || p.view == nil {
		return
	}
	img, flushed := p.layer.Take()
	if flushed {
		p.view.PreviewReset()
	}
	if img != nil {
		p.view.UpdatePreview(img)
		p.shown++
	}
}

// Shown counts frames handed to the view.
func (p *PreviewPresenter) Shown() uint64 {
	if p == nil {
		return 0
	}
	return p.shown
}
