package app

import (
	"log/slog"

	"github.com/soocke/frame-pipeline-go/app/pipeline"
	"github.com/soocke/frame-pipeline-go/config"
	"github.com/soocke/frame-pipeline-go/ui/model"
	"github.com/soocke/frame-pipeline-go/ui/presenter"
	"github.com/soocke/frame-pipeline-go/ui/view"
)

// AppContainer assembles models, the pipeline, presenters and the root view.
type AppContainer struct {
	Config   *config.Config
	Logger   *slog.Logger
	Capture  *model.CaptureModel
	Layer    *presenter.PreviewLayer
	Pipeline *pipeline.Pipeline
	RootView *view.RootView

	// Presenters
	CapturePresenter *presenter.CapturePresenter
	SessionPresenter *presenter.SessionPresenter
	StatusPresenter  *presenter.StatusPresenter
	PreviewPresenter *presenter.PreviewPresenter
	FocusWatcher     *presenter.FocusWatcher
	Loop             *presenter.Loop
}

// BuildContainer constructs all components. The pipeline's main queue and
// renderer start here; no capture source is opened until capture is enabled.
func BuildContainer(cfg *config.Config, cfgPath string, logger *slog.Logger) *AppContainer {
	c := &AppContainer{Config: cfg, Logger: logger}
	c.Capture = &model.CaptureModel{}
	c.Layer = presenter.NewPreviewLayer(cfg.WindowWidth-20, cfg.WindowHeight/2, logger)
	c.Pipeline = pipeline.New(cfg, c.Layer, pipeline.Options{Logger: logger})
	c.RootView = view.NewRootView(cfg, cfgPath, logger)

	// Presenters bind to the view; its widgets are created by Build on the Tk
	// thread and the view methods are nil-safe until then.
	c.CapturePresenter = presenter.NewCapturePresenter(c.Capture, c.Pipeline, c.RootView)
	c.SessionPresenter = presenter.NewSessionPresenter(c.Capture, c.RootView)
	c.StatusPresenter = presenter.NewStatusPresenter(c.Pipeline, c.RootView)
	c.PreviewPresenter = presenter.NewPreviewPresenter(c.Layer, c.RootView)
	c.FocusWatcher = presenter.NewFocusWatcher(c.Pipeline.Bus(), logger)
	c.Loop = presenter.NewLoop(c.SessionPresenter, c.StatusPresenter, c.PreviewPresenter, nil)
	c.Loop.Focus = c.FocusWatcher
	return c
}

// Close stops capture and releases the pipeline.
func (c *AppContainer) Close() {
	c.Pipeline.Close()
	c.Layer.Close()
}
