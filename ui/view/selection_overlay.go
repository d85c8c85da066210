package view

import (
	"fmt"
	"image"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/soocke/frame-pipeline-go/config"
	"github.com/soocke/frame-pipeline-go/platform/screen"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders
	. "modernc.org/tk9.0"
)

// SelectionOverlay is a transparent window the user drags and resizes over
// the screen to pick the region screen and recorder sources capture.
type SelectionOverlay interface {
	OpenOrFocus()
	Clear()
	ActiveRect() *image.Rectangle
}

type selectionOverlay struct {
	logger    *slog.Logger
	cfg       *config.Config
	cfgPath   string
	onChange  func(image.Rectangle)
	selection atomic.Value // stores image.Rectangle
	win       *ToplevelWidget
}

// NewSelectionOverlay restores the region persisted in cfg. onChange is
// called with the new region, or an empty rectangle for the whole screen.
func NewSelectionOverlay(cfg *config.Config, cfgPath string, logger *slog.Logger, onChange func(image.Rectangle)) SelectionOverlay {
	v := &selectionOverlay{logger: logger, cfg: cfg, cfgPath: cfgPath, onChange: onChange}
	if cfg != nil && cfg.SelectionW > 0 && cfg.SelectionH > 0 {
		rect := image.Rect(cfg.SelectionX, cfg.SelectionY, cfg.SelectionX+cfg.SelectionW, cfg.SelectionY+cfg.SelectionH)
		v.selection.Store(rect)
	}
	return v
}

func (v *selectionOverlay) OpenOrFocus() {
	if v.win != nil {
		WmGeometry(v.win.Window)
		return
	}
	win := App.Toplevel(Borderwidth(2), Background("#008080"))
	win.WmTitle("Capture Region")
	v.win = win
	screenW, screenH := screenSize()
	x, y, initW, initH := screenW/6, screenH/6, screenW*2/3, screenH*2/3
	if r := v.ActiveRect(); r != nil {
		x, y, initW, initH = r.Min.X, r.Min.Y, r.Dx(), r.Dy()
	}
	WmGeometry(win.Window, fmt.Sprintf("%dx%d+%d+%d", max(initW, 1), max(initH, 1), x, y))
	WmAttributes(win.Window, "-topmost", 1)
	WmAttributes(win.Window, "-alpha", 0.35)
	GridRowConfigure(win.Window, 0, Weight(1))
	GridColumnConfigure(win.Window, 0, Weight(1))
	center := win.Frame(Background("#008080"))
	Grid(center, Row(0), Column(0), Columnspan(3), Sticky("nsew"))
	controls := win.Frame()
	Grid(controls, Row(1), Column(0), Columnspan(3), Sticky("we"))
	confirm := win.Button(Txt("Confirm [Enter]"), Command(v.confirm))
	Grid(confirm, In(controls), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	cancel := win.Button(Txt("Cancel [Esc]"), Command(v.cancel))
	Grid(cancel, In(controls), Row(0), Column(1), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	clear := win.Button(Txt("Full Screen"), Command(func() { v.Clear(); v.destroy() }))
	Grid(clear, In(controls), Row(0), Column(2), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	Bind(win, "<Return>", Command(v.confirm))
	Bind(win, "<Escape>", Command(v.cancel))
}

func (v *selectionOverlay) Clear() {
	v.store(image.Rectangle{})
}

func (v *selectionOverlay) store(rect image.Rectangle) {
	v.selection.Store(rect)
	if v.cfg != nil {
		v.cfg.SelectionX, v.cfg.SelectionY = rect.Min.X, rect.Min.Y
		v.cfg.SelectionW, v.cfg.SelectionH = rect.Dx(), rect.Dy()
		if err := v.cfg.Save(v.cfgPath); err != nil && v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
	}
	if v.logger != nil {
		v.logger.Info("capture region changed", "region", rect.String())
	}
	if v.onChange != nil {
		v.onChange(rect)
	}
}

func (v *selectionOverlay) confirm() {
	if v.win == nil {
		return
	}
	if rect, ok := parseGeometrySel(WmGeometry(v.win.Window)); ok {
		v.store(rect)
	}
	v.destroy()
}

func (v *selectionOverlay) cancel() { v.destroy() }

func (v *selectionOverlay) destroy() {
	if v.win != nil {
		Destroy(v.win)
		v.win = nil
	}
}

func (v *selectionOverlay) ActiveRect() *image.Rectangle {
	rv := v.selection.Load()
	if rv == nil {
		return nil
	}
	r, ok := rv.(image.Rectangle)
	if !ok || r.Empty() {
		return nil
	}
	return &r
}

// screenSize returns the primary screen size, or 1920x1080 when it cannot
// be queried.
func screenSize() (int, int) {
	b, err := screen.Bounds()
	if err != nil || b.Empty() {
		return 1920, 1080
	}
	return b.Dx(), b.Dy()
}

// geomReSel matches window geometry strings in the format "WIDTHxHEIGHT+X+Y"
var geomReSel = regexp.MustCompile(`^(\d+)x(\d+)\+(-?\d+)\+(-?\d+)$`)

// parseGeometrySel parses a Tk geometry string and returns the corresponding rectangle.
func parseGeometrySel(g string) (image.Rectangle, bool) {
	g = strings.TrimSpace(g)
	m := geomReSel.FindStringSubmatch(g)
	if len(m) != 5 {
		return image.Rectangle{}, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	x, _ := strconv.Atoi(m[3])
	y, _ := strconv.Atoi(m[4])
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(x, y, x+w, y+h), true
}
