package presenter

import "time"

// Loop aggregates feature presenters and drives periodic updates on the Tk
// thread.
//
// It ticks the sub-presenters and invokes a scheduler callback. The zero
// value is usable (methods are nil-safe).
type Loop struct {
	Session  *SessionPresenter
	Status   *StatusPresenter
	Preview  *PreviewPresenter
	Focus    *FocusWatcher
	Schedule func()
}

func NewLoop(sess *SessionPresenter, status *StatusPresenter, preview *PreviewPresenter, schedule func()) *Loop {
	return &Loop{Session: sess, Status: status, Preview: preview, Schedule: schedule}
}

func (l *Loop) Tick() {
	if l == nil {
		return
	}
	l.Focus.Tick()
	l.Preview.Tick()
	l.Session.Tick(time.Now())
	l.Status.Tick()
	if l.Schedule != nil {
		l.Schedule()
	}
}
