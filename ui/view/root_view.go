package view

import (
	"image"
	"log/slog"
	"strconv"
	"time"

	"github.com/soocke/frame-pipeline-go/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// gravities lists the preview gravity choices in combobox order.
var gravities = []string{"aspect", "fill", "resize"}

// RootView composes the top-level application layout and wires UI callbacks.
// It owns high-level subviews but exposes minimal exported fields for presenters.
type RootView struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	// Subviews
	Session     SessionStats
	ConfigPanel ConfigPanel
	CapturePrev CapturePreview
	Selection   SelectionOverlay

	// Widgets
	StateLabel    *LabelWidget
	GravitySelect *TComboboxWidget
}

// Handlers are the user actions RootView forwards.
type Handlers struct {
	ToggleCapture func()
	SaveFrame     func()
	Exit          func()
	Gravity       func(name string)
	Region        func(r image.Rectangle)

	// Main window visibility and focus.
	Mapped   func()
	Unmapped func()
	FocusIn  func()
	FocusOut func()
}

func NewRootView(cfg *config.Config, cfgPath string, logger *slog.Logger) *RootView {
	return &RootView{cfg: cfg, cfgPath: cfgPath, logger: logger}
}

// Build constructs the layout.
func (rv *RootView) Build(h Handlers) {
	if rv == nil {
		return
	}
	bindWindow("<Map>", h.Mapped)
	bindWindow("<Unmap>", h.Unmapped)
	bindWindow("<FocusIn>", h.FocusIn)
	bindWindow("<FocusOut>", h.FocusOut)

	// Row 0: session stats, state label, buttons frame
	top := Frame()
	Grid(top, Row(0), Column(0), Columnspan(2), Sticky("w"))
	rv.Session = NewSessionStats(top, 0, 0)
	rv.StateLabel = Label(Txt("State: idle"), Borderwidth(1), Relief("ridge"), Anchor("w"))
	Grid(rv.StateLabel, Row(0), Column(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))

	btnFrame := Frame()
	Grid(btnFrame, Row(0), Column(3), Sticky("ne"), Padx("0.3m"), Pady("0.3m"))
	captureBtn := Button(Txt("Toggle Capture"), Command(h.ToggleCapture))
	Grid(captureBtn, In(btnFrame), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	rv.GravitySelect = TCombobox(Values(gravities), Width(12))
	Grid(rv.GravitySelect, In(btnFrame), Row(1), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	rv.GravitySelect.Current(gravityIndex(rv.cfg.Gravity))
	Bind(rv.GravitySelect, "<<ComboboxSelected>>", Command(func() {
		idx, err := strconv.Atoi(rv.GravitySelect.Current(nil))
		if err != nil || idx < 0 || idx >= len(gravities) {
			if rv.logger != nil {
				rv.logger.Error("gravity selection parse error", "error", err)
			}
			return
		}
		if h.Gravity != nil {
			h.Gravity(gravities[idx])
		}
	}))
	rv.Selection = NewSelectionOverlay(rv.cfg, rv.cfgPath, rv.logger, h.Region)
	regionBtn := Button(Txt("Capture Region"), Command(rv.Selection.OpenOrFocus))
	Grid(regionBtn, In(btnFrame), Row(2), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	if h.SaveFrame != nil {
		saveBtn := Button(Txt("Save Frame"), Command(h.SaveFrame))
		Grid(saveBtn, In(btnFrame), Row(3), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	}
	exitBtn := Button(Txt("Exit"), Command(h.Exit))
	Grid(exitBtn, In(btnFrame), Row(4), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))

	// Config panel rows, then the preview.
	rv.ConfigPanel = NewConfigPanel(rv.cfg, rv.cfgPath, rv.logger)
	endRow := rv.ConfigPanel.Build(1)
	w, hgt := rv.cfg.WindowWidth-20, rv.cfg.WindowHeight/2
	rv.CapturePrev = NewCapturePreview(endRow, w, hgt)
}

func bindWindow(event string, fn func()) {
	if fn != nil {
		Bind(App, event, Command(fn))
	}
}

func gravityIndex(name string) int {
	for i, g := range gravities {
		if g == name {
			return i
		}
	}
	return 0
}

// SetStateLabel updates the state label text.
func (rv *RootView) SetStateLabel(text string) {
	if rv != nil && rv.StateLabel != nil {
		rv.StateLabel.Configure(Txt(text))
	}
}

// ConfigEditable toggles config panel editability.
func (rv *RootView) ConfigEditable(enabled bool) {
	if rv != nil && rv.ConfigPanel != nil {
		rv.ConfigPanel.SetEditable(enabled)
	}
}

// UpdatePreview proxies to the capture preview.
func (rv *RootView) UpdatePreview(img image.Image) {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.UpdatePreview(img)
	}
}

// PreviewReset clears the capture preview.
func (rv *RootView) PreviewReset() {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.PreviewReset()
	}
}

// SetSession updates both session and total capture durations.
func (rv *RootView) SetSession(session, total time.Duration) {
	if rv == nil || rv.Session == nil {
		return
	}
	rv.Session.SetSession(session, total)
}
