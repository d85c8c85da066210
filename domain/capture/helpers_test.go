package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// recordingConsumer keeps acknowledgements and frame timestamps.
type recordingConsumer struct {
	mu     sync.Mutex
	acks   []bool
	stamps []time.Duration
	sizes  [][2]int
	pixels [][]byte
}

func (c *recordingConsumer) CaptureStarted(ok bool) {
	c.mu.Lock()
	c.acks = append(c.acks, ok)
	c.mu.Unlock()
}

func (c *recordingConsumer) ConsumeFrame(b *frame.Buffer) {
	px := append([]byte(nil), b.Plane(0).Data...)
	c.mu.Lock()
	c.stamps = append(c.stamps, b.Timestamp)
	c.sizes = append(c.sizes, [2]int{b.Width, b.Height})
	c.pixels = append(c.pixels, px)
	c.mu.Unlock()
	b.Release()
}

func (c *recordingConsumer) ackList() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.acks...)
}

func (c *recordingConsumer) frames() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.stamps...)
}

type gatedConsumer struct {
	recordingConsumer
	ready atomic.Bool
}

func (c *gatedConsumer) ReadyForFrames() bool { return c.ready.Load() }

// stepClock is a settable pacing clock.
type stepClock struct{ now atomic.Int64 }

func (c *stepClock) Now() time.Duration  { return time.Duration(c.now.Load()) }
func (c *stepClock) Set(d time.Duration) { c.now.Store(int64(d)) }

// manualTimers hands out manual timers and remembers the last one built.
type manualTimers struct {
	mu    sync.Mutex
	timer *pacing.Manual
	queue dispatch.Queue
	cfg   pacing.Config
	built int
}

func (m *manualTimers) factory(cfg pacing.Config, q dispatch.Queue, clock pacing.Clock) (pacing.Timer, error) {
	t := pacing.NewManual(cfg, q, clock)
	m.mu.Lock()
	m.timer, m.queue, m.cfg = t, q, cfg
	m.built++
	m.mu.Unlock()
	return t, nil
}

func (m *manualTimers) current(t *testing.T) (*pacing.Manual, dispatch.Queue) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		t.Fatalf("no timer built")
	}
	return m.timer, m.queue
}

// fire emits one tick and waits until the queue has run it.
func (m *manualTimers) fire(t *testing.T, now, target time.Duration) bool {
	t.Helper()
	timer, q := m.current(t)
	ok := timer.FireAt(now, target)
	q.Sync(func() {})
	return ok
}

type releaseCounter struct{ n atomic.Int32 }

func (r *releaseCounter) release() { r.n.Add(1) }

func (r *releaseCounter) count() int { return int(r.n.Load()) }

func bgraImage(w, h int, rc *releaseCounter) *ImageBuffer {
	var release func()
	if rc != nil {
		release = rc.release
	}
	p := frame.NewPayload([]frame.Plane{{Data: make([]byte, w*h*4), Stride: w * 4}}, release)
	return &ImageBuffer{Format: frame.PixelFormat32BGRA, Width: w, Height: h, Payload: p}
}

func nv12Image(w, h int, rc *releaseCounter) *ImageBuffer {
	var release func()
	if rc != nil {
		release = rc.release
	}
	cw, ch := (w+1)/2, (h+1)/2
	p := frame.NewPayload([]frame.Plane{
		{Data: make([]byte, w*h), Stride: w},
		{Data: make([]byte, cw*2*ch), Stride: cw * 2},
	}, release)
	return &ImageBuffer{Format: frame.PixelFormatYUV420BiPlanarFullRange, Width: w, Height: h, Payload: p}
}

func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func assertNonDecreasing(t *testing.T, stamps []time.Duration) {
	t.Helper()
	for i := 1; i < len(stamps); i++ {
		if stamps[i] < stamps[i-1] {
			t.Fatalf("timestamps regress at %d: %v", i, stamps)
		}
	}
}
