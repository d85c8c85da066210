package presenter

// CaptureModel provides enabled state access.
type CaptureModel interface {
	Enabled() bool
	SetEnabled(bool)
	SetError(error)
}

// CaptureSession narrows what the presenter needs from the pipeline.
type CaptureSession interface {
	Start() error
	Stop()
}

// CaptureView updates UI elements affected by capture toggling.
type CaptureView interface {
	PreviewReset()
	ConfigEditable(bool)
	SetStateLabel(string)
}

// CapturePresenter owns presentation logic for toggling capture state.
type CapturePresenter struct {
	model   CaptureModel
	session CaptureSession
	view    CaptureView
}

func NewCapturePresenter(model CaptureModel, session CaptureSession, view CaptureView) *CapturePresenter {
	return &CapturePresenter{model: model, session: session, view: view}
}

func (c *CapturePresenter) ready() bool {
	return c != nil && c.model != nil && c.session != nil && c.view != nil
}

// Enable starts a capture session and locks the config panel. A failed start
// leaves capture disabled and shows the error. Idempotent.
func (c *CapturePresenter) Enable() error {
	if !c.ready() || c.model.Enabled() {
		return nil
	}
	if err := c.session.Start(); err != nil {
		c.model.SetError(err)
		c.view.SetStateLabel("Capture failed: " + err.Error())
		return err
	}
	c.model.SetEnabled(true)
	c.view.ConfigEditable(false)
	return nil
}

// Disable stops the session and clears the preview. Idempotent.
func (c *CapturePresenter) Disable() {
	if !c.ready() || !c.model.Enabled() {
		return
	}
	c.session.Stop()
	c.model.SetEnabled(false)
	c.view.PreviewReset()
	c.view.ConfigEditable(true)
}

// Toggle flips enabled state delegating to Enable/Disable.
func (c *CapturePresenter) Toggle() {
	if !c.ready() {
		return
	}
	if c.model.Enabled() {
		c.Disable()
		return
	}
	_ = c.Enable()
}
