package pacing

import (
	"sync"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
)

// schedule returns the next deadline strictly after now plus the tick
// target for that deadline.
type schedule func(anchor, now time.Duration) (deadline, target time.Duration)

// intervalSchedule fires on anchor + k*Interval. Deadlines that already
// passed are skipped rather than fired in a burst.
func intervalSchedule(cfg Config) schedule {
	return func(anchor, now time.Duration) (time.Duration, time.Duration) {
		k := (now-anchor)/cfg.Interval + 1
		d := anchor + k*cfg.Interval
		return d, d
	}
}

// displaySchedule models a refresh grid at multiples of RefreshInterval and
// fires on every Divisor-th refresh, targeting the following refresh.
func displaySchedule(cfg Config) schedule {
	step := cfg.RefreshInterval * time.Duration(cfg.Divisor)
	return func(_, now time.Duration) (time.Duration, time.Duration) {
		k := now/step + 1
		d := k * step
		return d, d + cfg.RefreshInterval
	}
}

// loopTimer runs one goroutine while armed and unpaused. Pause ends the
// goroutine, Resume starts a fresh one from the current host time.
type loopTimer struct {
	core
	next schedule

	loopMu sync.Mutex
	stop   chan struct{}
}

func newLoopTimer(cfg Config, q dispatch.Queue, clock Clock, next schedule) *loopTimer {
	return &loopTimer{core: core{cfg: cfg, q: q, clock: clock}, next: next}
}

func (t *loopTimer) Start(h Handler) error {
	if err := t.start(h); err != nil {
		return err
	}
	if !t.paused.Load() {
		t.spawn()
	}
	return nil
}

func (t *loopTimer) Pause() {
	if !t.live.Load() || t.paused.Swap(true) {
		return
	}
	t.halt()
}

func (t *loopTimer) Resume() {
	if !t.live.Load() || !t.paused.Swap(false) {
		return
	}
	t.spawn()
}

func (t *loopTimer) Stop() {
	if t.kill() {
		t.halt()
	}
}

func (t *loopTimer) spawn() {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	go t.run(stop)
}

func (t *loopTimer) halt() {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *loopTimer) run(stop <-chan struct{}) {
	anchor := t.clock.Now()
	deadline, target := t.next(anchor, anchor)
	timer := time.NewTimer(deadline - anchor)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		now := t.clock.Now()
		if late := now - deadline; late > t.cfg.Leeway {
			t.late.Add(1)
		}
		t.emit(deadline, target)

		prev := deadline
		deadline, target = t.next(anchor, now)
		if period := t.period(); period > 0 {
			if n := (deadline - prev) / period; n > 1 {
				t.skipped.Add(uint64(n - 1))
			}
		}
		wait := deadline - t.clock.Now()
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (t *loopTimer) period() time.Duration {
	if t.cfg.Strategy == StrategyInterval {
		return t.cfg.Interval
	}
	return t.cfg.RefreshInterval * time.Duration(t.cfg.Divisor)
}
