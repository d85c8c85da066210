package presenter

import "time"

// SessionModel advances and reports capture durations.
type SessionModel interface {
	OnTick(now time.Time)
	Durations() (session, total time.Duration)
}

// SessionView displays formatted session and total durations.
type SessionView interface {
	SetSession(session, total time.Duration)
}

// SessionPresenter pushes session and total durations from the model to the view.
type SessionPresenter struct {
	model SessionModel
	view  SessionView
}

func NewSessionPresenter(model SessionModel, view SessionView) *SessionPresenter {
	return &SessionPresenter{model: model, view: view}
}

func (p *SessionPresenter) Tick(now time.Time) {
	if p == nil || p.model == nil || p.view == nil {
		return
	}
	p.model.OnTick(now)
	p.view.SetSession(p.model.Durations())
}
