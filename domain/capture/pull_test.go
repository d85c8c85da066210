package capture

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

// fakeTimeline maps host time straight to item time and serves buffers for
// the item times marked ready.
type fakeTimeline struct {
	mu       sync.Mutex
	w, h     int
	settings OutputSettings
	ready    map[int64]bool
	display  map[int64]frame.Time
	observer TimelineObserver
	checks   int
	requests int
	released releaseCounter
}

func newFakeTimeline(w, h int) *fakeTimeline {
	return &fakeTimeline{w: w, h: h, ready: map[int64]bool{}, display: map[int64]frame.Time{}}
}

func (f *fakeTimeline) PresentationSize() (int, int) { return f.w, f.h }

func (f *fakeTimeline) ConfigureOutput(s OutputSettings) {
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
}

func (f *fakeTimeline) ItemTimeForHostTime(host time.Duration) frame.Time {
	return frame.MicrosTime(host)
}

func (f *fakeTimeline) HasNewBuffer(t frame.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.ready[t.Micros()]
}

func (f *fakeTimeline) CopyBuffer(t frame.Time) (*ImageBuffer, frame.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready[t.Micros()] {
		return nil, frame.InvalidTime, false
	}
	delete(f.ready, t.Micros())
	display := t
	if d, ok := f.display[t.Micros()]; ok {
		display = d
	}
	return nv12Image(4, 4, &f.released), display, true
}

func (f *fakeTimeline) Observe(o TimelineObserver) func() {
	f.mu.Lock()
	f.observer = o
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.observer = nil
		f.mu.Unlock()
	}
}

func (f *fakeTimeline) RequestMediaDataChange(time.Duration) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
}

func (f *fakeTimeline) markReady(host time.Duration) {
	f.mu.Lock()
	f.ready[host.Microseconds()] = true
	f.mu.Unlock()
}

func (f *fakeTimeline) currentObserver() TimelineObserver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observer
}

func startPull(t *testing.T, tl Timeline, opts PullOptions) (*Capturer, *PullSource, *recordingConsumer, *manualTimers) {
	t.Helper()
	timers := &manualTimers{}
	opts.NewTimer = timers.factory
	opts.Logger = discardLogger
	if opts.SuspendTimeout == 0 {
		opts.SuspendTimeout = -1
	}
	src := NewPullSource(tl, opts)
	c := newTestCapturer(t, src, Options{})
	cons := &recordingConsumer{}
	if err := c.StartCapture(src.Formats()[0], cons); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c, src, cons, timers
}

func TestPull_ReadyOnAlternateTicks(t *testing.T) {
	tl := newFakeTimeline(640, 360)
	interval := 16667 * time.Microsecond
	_, _, cons, timers := startPull(t, tl, PullOptions{Pacing: pacing.Config{Strategy: pacing.StrategyInterval, Interval: interval}})

	for _, n := range []int{1, 3, 5} {
		tl.markReady(time.Duration(n+1) * interval)
	}
	for n := 1; n <= 6; n++ {
		now := time.Duration(n) * interval
		timers.fire(t, now, now+interval)
		want := (n + 1) / 2
		if got := len(cons.frames()); got != want {
			t.Fatalf("after tick %d expected %d frames, got %d", n, want, got)
		}
	}
	stamps := cons.frames()
	if len(stamps) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if stamps[i] <= stamps[i-1] {
			t.Fatalf("timestamps not strictly increasing: %v", stamps)
		}
	}
	tl.mu.Lock()
	checks := tl.checks
	tl.mu.Unlock()
	if checks != 6 {
		t.Fatalf("expected one readiness check per tick, got %d", checks)
	}
}

func TestPull_NotReadyThenReady(t *testing.T) {
	tl := newFakeTimeline(640, 360)
	c, _, cons, timers := startPull(t, tl, PullOptions{})

	timers.fire(t, 10*time.Millisecond, 20*time.Millisecond)
	if len(cons.frames()) != 0 {
		t.Fatalf("frame delivered on not-ready tick")
	}
	tl.markReady(30 * time.Millisecond)
	timers.fire(t, 20*time.Millisecond, 30*time.Millisecond)
	stamps := cons.frames()
	if len(stamps) != 1 || stamps[0] != 30*time.Millisecond {
		t.Fatalf("expected one frame at 30ms, got %v", stamps)
	}
	if st := c.Stats(); st.Skipped != 1 || st.Captures != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPull_DownscaleRequest(t *testing.T) {
	tl := newFakeTimeline(1920, 1080)
	NewPullSource(tl, PullOptions{Logger: discardLogger})
	if s := tl.settings; s.Width != 960 || s.Height != 540 || s.PixelFormat != frame.PixelFormatYUV420BiPlanarVideoRange {
		t.Fatalf("unexpected output settings: %+v", s)
	}

	small := newFakeTimeline(640, 360)
	NewPullSource(small, PullOptions{Logger: discardLogger})
	if s := small.settings; s.Width != 0 || s.Height != 0 {
		t.Fatalf("small content should keep native size, got %+v", s)
	}
}

func TestFitAspect(t *testing.T) {
	cases := []struct {
		w, h int
		want image.Rectangle
	}{
		{1920, 1080, image.Rect(0, 210, 960, 750)},
		{1080, 1920, image.Rect(210, 0, 750, 960)},
		{1000, 1000, image.Rect(0, 0, 960, 960)},
		{0, 10, image.Rectangle{}},
	}
	for _, tc := range cases {
		if got := FitAspect(tc.w, tc.h, image.Rect(0, 0, 960, 960)); got != tc.want {
			t.Fatalf("FitAspect(%d,%d) = %v, want %v", tc.w, tc.h, got, tc.want)
		}
	}
}

func TestPull_MediaChangeDeliversImmediately(t *testing.T) {
	tl := newFakeTimeline(640, 360)
	clock := &stepClock{}
	clock.Set(40 * time.Millisecond)
	_, _, cons, timers := startPull(t, tl, PullOptions{Clock: clock})

	tl.markReady(40 * time.Millisecond)
	tl.currentObserver().MediaDataWillChange()
	_, q := timers.current(t)
	q.Sync(func() {})
	if stamps := cons.frames(); len(stamps) != 1 || stamps[0] != 40*time.Millisecond {
		t.Fatalf("expected immediate pull at 40ms, got %v", stamps)
	}
}

func TestPull_SuspendsWhenIdleAndResumesOnMediaChange(t *testing.T) {
	tl := newFakeTimeline(640, 360)
	clock := &stepClock{}
	_, _, cons, timers := startPull(t, tl, PullOptions{Clock: clock, SuspendTimeout: 100 * time.Millisecond})
	timer, q := timers.current(t)

	timers.fire(t, 50*time.Millisecond, 60*time.Millisecond)
	if timer.Paused() {
		t.Fatalf("suspended before timeout")
	}
	timers.fire(t, 150*time.Millisecond, 160*time.Millisecond)
	if !timer.Paused() {
		t.Fatalf("expected timer suspended after idle timeout")
	}
	tl.mu.Lock()
	requests := tl.requests
	tl.mu.Unlock()
	if requests != 1 {
		t.Fatalf("expected one media change request, got %d", requests)
	}
	if timer.FireAt(170*time.Millisecond, 180*time.Millisecond) {
		t.Fatalf("suspended timer accepted a tick")
	}

	clock.Set(200 * time.Millisecond)
	tl.currentObserver().MediaDataWillChange()
	q.Sync(func() {})
	if timer.Paused() {
		t.Fatalf("media change did not resume the timer")
	}
	tl.markReady(260 * time.Millisecond)
	timers.fire(t, 250*time.Millisecond, 260*time.Millisecond)
	if len(cons.frames()) != 1 {
		t.Fatalf("expected a frame after resume, got %d", len(cons.frames()))
	}
}

func TestPull_RegressionDroppedUntilFlush(t *testing.T) {
	tl := newFakeTimeline(640, 360)
	_, src, cons, timers := startPull(t, tl, PullOptions{})

	tl.markReady(100 * time.Millisecond)
	timers.fire(t, 90*time.Millisecond, 100*time.Millisecond)

	tl.mu.Lock()
	tl.ready[(120 * time.Millisecond).Microseconds()] = true
	tl.display[(120 * time.Millisecond).Microseconds()] = frame.MicrosTime(50 * time.Millisecond)
	tl.mu.Unlock()
	timers.fire(t, 110*time.Millisecond, 120*time.Millisecond)
	if src.Regressions() != 1 || len(cons.frames()) != 1 {
		t.Fatalf("regressed buffer delivered: regressions=%d frames=%v", src.Regressions(), cons.frames())
	}

	tl.currentObserver().SequenceFlushed()
	tl.mu.Lock()
	tl.ready[(140 * time.Millisecond).Microseconds()] = true
	tl.display[(140 * time.Millisecond).Microseconds()] = frame.MicrosTime(10 * time.Millisecond)
	tl.mu.Unlock()
	timers.fire(t, 130*time.Millisecond, 140*time.Millisecond)
	stamps := cons.frames()
	if len(stamps) != 2 || stamps[1] != 10*time.Millisecond {
		t.Fatalf("expected post-flush frame at 10ms, got %v", stamps)
	}
	// Two delivered buffers released by the consumer, one regressed buffer
	// released by the source.
	if got := tl.released.count(); got != 3 {
		t.Fatalf("expected 3 releases, got %d", got)
	}
}

func TestPull_NilTimelineFailsStart(t *testing.T) {
	src := NewPullSource(nil, PullOptions{Logger: discardLogger})
	c := newTestCapturer(t, src, Options{})
	cons := &recordingConsumer{}
	if err := c.StartCapture(DefaultPullFormat, cons); !errors.Is(err, ErrNoTimeline) {
		t.Fatalf("expected ErrNoTimeline, got %v", err)
	}
	if acks := cons.ackList(); len(acks) != 1 || acks[0] {
		t.Fatalf("expected negative ack, got %v", acks)
	}
}

func TestPull_StopCancelsObserverAndTimer(t *testing.T) {
	tl := newFakeTimeline(640, 360)
	c, _, cons, timers := startPull(t, tl, PullOptions{})
	c.StopCapture()
	if tl.currentObserver() != nil {
		t.Fatalf("observer still registered after stop")
	}
	tl.markReady(20 * time.Millisecond)
	if timers.fire(t, 10*time.Millisecond, 20*time.Millisecond) {
		t.Fatalf("stopped timer accepted a tick")
	}
	if len(cons.frames()) != 0 {
		t.Fatalf("frame delivered after stop")
	}
}
