package pacing

import (
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
)

// Manual is a timer fired by an external refresh driver, such as a UI
// toolkit's frame callback. It honours pause and stop like the others.
type Manual struct {
	core
}

// NewManual returns a manual timer delivering on q.
func NewManual(cfg Config, q dispatch.Queue, clock Clock) *Manual {
	if clock == nil {
		clock = SystemClock()
	}
	return &Manual{core: core{cfg: cfg.withDefaults(), q: q, clock: clock}}
}

func (m *Manual) Start(h Handler) error { return m.start(h) }

func (m *Manual) Pause() {
	if m.live.Load() {
		m.paused.Store(true)
	}
}

func (m *Manual) Resume() {
	if m.live.Load() {
		m.paused.Store(false)
	}
}

func (m *Manual) Stop() { m.kill() }

// Fire emits one tick at the current host time targeting one refresh ahead.
// It reports whether the tick was accepted for delivery.
func (m *Manual) Fire() bool {
	now := m.clock.Now()
	return m.FireAt(now, now+m.cfg.RefreshInterval)
}

// FireAt emits one tick with explicit times.
func (m *Manual) FireAt(now, target time.Duration) bool {
	if !m.live.Load() || m.paused.Load() {
		m.skipped.Add(1)
		return false
	}
	m.emit(now, target)
	return true
}
