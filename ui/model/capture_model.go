package model

import (
	"sync"
	"sync/atomic"
	"time"
)

// CaptureModel tracks whether capture is enabled and how long it has been
// running. The zero value is disabled and usable. Enabled is read from
// capture callbacks as well as the Tk loop, so it is atomic.
type CaptureModel struct {
	enabled atomic.Bool

	mu          sync.Mutex
	active      bool
	start       time.Time
	session     time.Duration
	accumulated time.Duration
	lastErr     string
}

// Enabled reports whether capture is currently enabled.
func (m *CaptureModel) Enabled() bool {
	if m == nil {
		return false
	}
	return m.enabled.Load()
}

// SetEnabled stores the enabled flag. Enabling clears the last error.
func (m *CaptureModel) SetEnabled(b bool) {
	if m == nil || m.enabled.Swap(b) == b {
		return
	}
	if b {
		m.mu.Lock()
		m.lastErr = ""
		m.mu.Unlock()
	}
}

// SetError records why the last start failed.
func (m *CaptureModel) SetError(err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.lastErr = ""
		return
	}
	m.lastErr = err.Error()
}

// LastError returns the last recorded start failure, or "".
func (m *CaptureModel) LastError() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// OnTick advances the session clock from the enabled flag. Call periodically.
func (m *CaptureModel) OnTick(now time.Time) {
	if m == nil {
		return
	}
	capturing := m.enabled.Load()
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case capturing && !m.active:
		m.active = true
		m.start = now
		m.session = 0
	case capturing:
		m.session = now.Sub(m.start)
	case m.active:
		m.session = now.Sub(m.start)
		m.accumulated += m.session
		m.active = false
	}
}

// Durations returns the current (or last) session length and the total time
// spent capturing, including the running session.
func (m *CaptureModel) Durations() (session, total time.Duration) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session, total = m.session, m.accumulated
	if m.active {
		total += session
	}
	return session, total
}
