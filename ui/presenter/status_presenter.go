package presenter

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/render"
)

// Status is a snapshot of pipeline state for the status label.
type Status struct {
	Source   string
	Capture  capture.State
	Renderer render.State
	Video    render.VideoSize
	Rendered uint64
	// Err is the last start failure, shown while capture is idle.
	Err string
}

// StatusSource reports pipeline status.
type StatusSource interface {
	Status() Status
}

// StateView sets the state label in the view.
type StateView interface{ SetStateLabel(string) }

// StatusPresenter reflects pipeline status in the state label, touching the
// view only when the text changes.
type StatusPresenter struct {
	src  StatusSource
	view StateView
	last string
}

func NewStatusPresenter(src StatusSource, view StateView) *StatusPresenter {
	return &StatusPresenter{src: src, view: view}
}

func (p *StatusPresenter) Tick() {
	if p == nil || p.src == nil || p.view == nil {
		return
	}
	text := FormatStatus(p.src.Status())
	if text == p.last {
		return
	}
	p.last = text
	p.view.SetStateLabel(text)
}

// FormatStatus renders s as a single line.
func FormatStatus(s Status) string {
	if s.Capture == capture.StateIdle && s.Err != "" {
		return "Capture failed: " + s.Err
	}
	parts := []string{s.Source, s.Capture.String(), s.Renderer.String()}
	if s.Video.Width > 0 && s.Video.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", s.Video.Width, s.Video.Height))
	}
	parts = append(parts, humanize.Comma(int64(s.Rendered))+" frames")
	return "State: " + strings.Join(parts, " | ")
}
