package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soocke/frame-pipeline-go/config"
	"github.com/soocke/frame-pipeline-go/debug"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
	"github.com/soocke/frame-pipeline-go/ui/view"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const (
	tick = 33 * time.Millisecond

	debugLogInterval = 10 * time.Second
)

type app struct {
	config  *config.Config
	logger  *slog.Logger
	c       *AppContainer
	afterID string
	cancel  context.CancelFunc
}

// NewApp builds the container and configures the main window.
func NewApp(title string, cfg *config.Config, cfgPath string, logger *slog.Logger) *app {
	a := &app{config: cfg, logger: logger}
	a.c = BuildContainer(cfg, cfgPath, logger)

	App.WmTitle(title)
	WmProtocol(App, "WM_DELETE_WINDOW", a.exitHandler)
	WmGeometry(App, fmt.Sprintf("%dx%d+100+100", cfg.WindowWidth, cfg.WindowHeight))
	return a
}

// Bus exposes the pipeline lifecycle bus so callers can forward OS events.
func (a *app) Bus() *lifecycle.Bus { return a.c.Pipeline.Bus() }

// Start builds the UI and blocks in the Tk event loop until the window closes.
func (a *app) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	a.c.RootView.Build(view.Handlers{
		ToggleCapture: a.c.CapturePresenter.Toggle,
		SaveFrame:     a.saveFrame,
		Exit:          a.exitHandler,
		Gravity:       a.c.Pipeline.SetGravity,
		Region:        a.c.Pipeline.SetRegion,
		Mapped:        a.c.FocusWatcher.Mapped,
		Unmapped:      a.c.FocusWatcher.Unmapped,
		FocusIn:       a.c.FocusWatcher.FocusIn,
		FocusOut:      a.c.FocusWatcher.FocusOut,
	})
	if prev := a.c.RootView.CapturePrev; prev != nil {
		a.c.Layer.SetSize(prev.Size())
	}

	if a.config.Debug {
		debug.StartGoroutineLogger(ctx, debugLogInterval, a.logger)
		debug.StartMemLogger(ctx, debugLogInterval, a.logger)
	}
	debug.StartStatsLogger(ctx, time.Duration(a.config.StatsIntervalSec)*time.Second, a.logger, a.c.Pipeline.Reporters()...)

	a.c.Loop.Schedule = a.scheduleUpdate
	a.scheduleUpdate()

	App.Wait()
}

// saveFrame writes the newest frame next to the working directory.
func (a *app) saveFrame() {
	path := fmt.Sprintf("frame-%s.png", time.Now().Format("20060102-150405"))
	if err := a.c.Pipeline.SaveFrame(path); err != nil {
		a.logger.Warn("save frame failed", "error", err)
	}
}

func (a *app) exitHandler() {
	if a.afterID != "" {
		TclAfterCancel(a.afterID)
		a.afterID = ""
	}
	a.c.Loop.Schedule = nil
	a.c.Close()
	if a.cancel != nil {
		a.cancel()
	}
	Destroy(App)
}

func (a *app) scheduleUpdate() {
	// TclAfter keeps view updates on Tk's event loop thread.
	a.afterID = TclAfter(tick, a.c.Loop.Tick)
}
