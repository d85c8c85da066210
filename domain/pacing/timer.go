// Package pacing decides when a capture source should try to produce a
// frame. Ticks are delivered on a dispatch.Queue and carry host times from a
// monotonic Clock.
package pacing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
)

// ErrTimerStarted is returned by Start on a timer that was already started.
var ErrTimerStarted = errors.New("pacing: timer already started")

// Clock reports monotonic host time.
type Clock interface {
	Now() time.Duration
}

var processEpoch = time.Now()

type systemClock struct{}

func (systemClock) Now() time.Duration { return time.Since(processEpoch) }

// SystemClock returns host time measured on the monotonic clock since
// process start.
func SystemClock() Clock { return systemClock{} }

// Tick is one pacing event.
type Tick struct {
	Seq uint64
	// Now is the nominal fire time.
	Now time.Duration
	// Target is the host time at which content fetched for this tick will be
	// on screen. For display pacing it is the next refresh.
	Target time.Duration
}

// Handler receives ticks on the timer's queue.
type Handler func(Tick)

// Strategy selects the timer implementation.
type Strategy string

const (
	StrategyDisplayRefresh Strategy = "display"
	StrategyInterval       Strategy = "interval"
	StrategyManual         Strategy = "manual"
)

// Config configures a timer. Zero fields take defaults.
type Config struct {
	Strategy Strategy
	// Interval is the fixed-interval period.
	Interval time.Duration
	// Leeway is the lateness tolerated before a tick is counted late.
	Leeway time.Duration
	// RefreshInterval is the display refresh period.
	RefreshInterval time.Duration
	// Divisor fires display pacing on every Divisor-th refresh.
	Divisor int
	// StartPaused arms the timer without firing until Resume.
	StartPaused bool
}

// Defaults: 60 Hz.
const (
	DefaultInterval        = 16667 * time.Microsecond
	DefaultRefreshInterval = 16667 * time.Microsecond
)

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyDisplayRefresh
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Leeway < 0 {
		c.Leeway = 0
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.Divisor < 1 {
		c.Divisor = 1
	}
	return c
}

// DivisorForRate returns the refresh divisor that approximates fps on a
// display refreshing every refresh.
func DivisorForRate(refresh time.Duration, fps int) int {
	if fps <= 0 || refresh <= 0 {
		return 1
	}
	hz := float64(time.Second) / float64(refresh)
	d := int(hz/float64(fps) + 0.5)
	if d < 1 {
		d = 1
	}
	return d
}

// Stats counts timer activity.
type Stats struct {
	Fired   uint64
	Late    uint64
	Skipped uint64
}

// Timer is the pacing contract shared by all strategies.
type Timer interface {
	// Start arms the timer with h.
	Start(h Handler) error
	// Pause stops firing and keeps configuration.
	Pause()
	// Resume restarts firing after Pause.
	Resume()
	// Stop stops firing for good and releases resources. Safe to call
	// concurrently with an in-flight tick and more than once.
	Stop()
	Paused() bool
	Stats() Stats
}

// New builds the timer selected by cfg.Strategy.
func New(cfg Config, q dispatch.Queue, clock Clock) (Timer, error) {
	if q == nil {
		return nil, errors.New("pacing: nil queue")
	}
	if clock == nil {
		clock = SystemClock()
	}
	cfg = cfg.withDefaults()
	switch cfg.Strategy {
	case StrategyDisplayRefresh:
		return newLoopTimer(cfg, q, clock, displaySchedule(cfg)), nil
	case StrategyInterval:
		return newLoopTimer(cfg, q, clock, intervalSchedule(cfg)), nil
	case StrategyManual:
		return NewManual(cfg, q, clock), nil
	}
	return nil, fmt.Errorf("pacing: unknown strategy %q", cfg.Strategy)
}

// core holds the state every strategy shares: the handler, the pause flag
// and the liveness generation checked inside each dispatched tick.
type core struct {
	cfg   Config
	q     dispatch.Queue
	clock Clock

	mu      sync.Mutex
	handler Handler
	started bool

	live   atomic.Bool
	paused atomic.Bool
	gen    atomic.Uint64
	seq    atomic.Uint64

	fired   atomic.Uint64
	late    atomic.Uint64
	skipped atomic.Uint64
}

func (c *core) start(h Handler) error {
	if h == nil {
		return errors.New("pacing: nil handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrTimerStarted
	}
	c.started = true
	c.handler = h
	c.paused.Store(c.cfg.StartPaused)
	c.live.Store(true)
	return nil
}

// emit hands a tick to the queue. The closure re-checks liveness so a Stop
// racing with an already queued tick wins.
func (c *core) emit(now, target time.Duration) {
	gen := c.gen.Load()
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return
	}
	tick := Tick{Seq: c.seq.Add(1), Now: now, Target: target}
	c.q.Async(func() {
		if !c.live.Load() || c.gen.Load() != gen || c.paused.Load() {
			return
		}
		c.fired.Add(1)
		h(tick)
	})
}

func (c *core) kill() bool {
	if !c.live.Swap(false) {
		return false
	}
	c.gen.Add(1)
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	return true
}

func (c *core) Paused() bool { return c.paused.Load() }

func (c *core) Stats() Stats {
	return Stats{Fired: c.fired.Load(), Late: c.late.Load(), Skipped: c.skipped.Load()}
}
