package render

import (
	"errors"
	"image"
	"log/slog"
	"testing"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeLayer holds the displayed frame like a real layer would.
type fakeLayer struct {
	err      error
	notReady bool
	enqueued []*SampleBuffer
	current  *frame.Buffer
	flushes  int
	gravity  Gravity
}

func (l *fakeLayer) Err() error                  { return l.err }
func (l *fakeLayer) ReadyForMoreMediaData() bool { return !l.notReady }
func (l *fakeLayer) SetGravity(g Gravity)        { l.gravity = g }

func (l *fakeLayer) Enqueue(sb *SampleBuffer) {
	l.enqueued = append(l.enqueued, sb)
	l.current.Release()
	l.current = sb.Frame
}

func (l *fakeLayer) FlushAndRemoveImage() {
	l.flushes++
	l.current.Release()
	l.current = nil
}

type rig struct {
	main     *dispatch.SerialQueue
	bus      *lifecycle.Bus
	layer    *fakeLayer
	renderer *Renderer
	sizes    []VideoSize
}

func newRig(t *testing.T) *rig {
	t.Helper()
	main := dispatch.NewSerialQueue("main", discardLogger)
	t.Cleanup(main.Close)
	g := &rig{main: main, bus: lifecycle.NewBus(main, discardLogger), layer: &fakeLayer{}}
	g.renderer = NewRenderer(g.layer, main, g.bus, Options{
		Logger:      discardLogger,
		Gravity:     GravityResizeAspectFill,
		OnVideoSize: func(s VideoSize) { g.sizes = append(g.sizes, s) },
	})
	main.Sync(g.renderer.Attach)
	return g
}

func (g *rig) render(t *testing.T, b *frame.Buffer) error {
	t.Helper()
	var err error
	g.main.Sync(func() { err = g.renderer.RenderFrame(b) })
	return err
}

func (g *rig) publish(e lifecycle.Event) {
	g.bus.Publish(e)
	g.main.Sync(func() {})
}

type released struct{ n int }

func buffer(t *testing.T, ts time.Duration, format frame.PixelFormat, w, h int, rel *released) *frame.Buffer {
	t.Helper()
	var planes []frame.Plane
	for i := 0; i < format.PlaneCount(); i++ {
		stride, rows := format.PlaneSize(i, w, h)
		planes = append(planes, frame.Plane{Data: make([]byte, stride*rows), Stride: stride})
	}
	var release func()
	if rel != nil {
		release = func() { rel.n++ }
	}
	b, err := frame.New(ts, format, w, h, frame.OrientationUp, frame.NewPayload(planes, release))
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return b
}

func TestRenderer_FormatCacheRecomputedOnlyOnChange(t *testing.T) {
	g := newRig(t)
	a := func(ts time.Duration) *frame.Buffer { return buffer(t, ts, frame.PixelFormat32BGRA, 8, 4, nil) }
	bfmt := func(ts time.Duration) *frame.Buffer {
		return buffer(t, ts, frame.PixelFormatYUV420BiPlanarFullRange, 8, 4, nil)
	}

	for i := 0; i < 3; i++ {
		if err := g.render(t, a(time.Duration(i))); err != nil {
			t.Fatalf("render A: %v", err)
		}
	}
	if got := g.renderer.Stats().FormatChanges; got != 1 {
		t.Fatalf("expected one format computation for A, got %d", got)
	}
	for i := 3; i < 6; i++ {
		if err := g.render(t, bfmt(time.Duration(i))); err != nil {
			t.Fatalf("render B: %v", err)
		}
	}
	if got := g.renderer.Stats().FormatChanges; got != 2 {
		t.Fatalf("expected exactly one recomputation at A->B, got %d total", got)
	}
	if len(g.layer.enqueued) != 6 {
		t.Fatalf("expected 6 enqueued, got %d", len(g.layer.enqueued))
	}
	if g.layer.enqueued[0].Format != g.layer.enqueued[2].Format {
		t.Fatalf("format descriptor recreated while format was constant")
	}
	var f *OutputFormat
	g.main.Sync(func() { f = g.renderer.Format() })
	if f.PixelFormat != frame.PixelFormatYUV420BiPlanarFullRange || f.Width != 8 {
		t.Fatalf("unexpected cached format %v", f)
	}
}

func TestRenderer_RejectsPlanarYUV(t *testing.T) {
	g := newRig(t)
	for _, pf := range []frame.PixelFormat{frame.PixelFormatYUV420PlanarFullRange, frame.PixelFormatYUV420PlanarVideoRange} {
		rel := &released{}
		err := g.render(t, buffer(t, 0, pf, 4, 4, rel))
		if !errors.Is(err, ErrUnsupportedPixelFormat) {
			t.Fatalf("expected ErrUnsupportedPixelFormat for %s, got %v", pf, err)
		}
		if rel.n != 1 {
			t.Fatalf("rejected buffer not released")
		}
	}
	if len(g.layer.enqueued) != 0 {
		t.Fatalf("planar buffer enqueued")
	}
	if st := g.renderer.Stats(); st.Rejected != 2 {
		t.Fatalf("expected 2 rejections, got %+v", st)
	}
}

func TestRenderer_SampleTiming(t *testing.T) {
	g := newRig(t)
	if err := g.render(t, buffer(t, 1500*time.Millisecond, frame.PixelFormat32BGRA, 2, 2, nil)); err != nil {
		t.Fatalf("render: %v", err)
	}
	sb := g.layer.enqueued[0]
	if sb.PresentationTime.Scale != frame.MicrosecondScale || sb.PresentationTime.Value != 1_500_000 {
		t.Fatalf("unexpected timing %+v", sb.PresentationTime)
	}
	if !sb.DisplayImmediately {
		t.Fatalf("sample not marked for immediate display")
	}
	if g.layer.gravity != GravityResizeAspectFill {
		t.Fatalf("gravity not applied on attach")
	}
	if len(g.sizes) != 1 || g.sizes[0] != (VideoSize{Width: 2, Height: 2}) {
		t.Fatalf("unexpected size updates %v", g.sizes)
	}
}

func TestRenderer_DropsWhenNotReadyOrFailed(t *testing.T) {
	g := newRig(t)
	rel := &released{}
	g.layer.notReady = true
	if err := g.render(t, buffer(t, 0, frame.PixelFormat32BGRA, 2, 2, rel)); err != nil {
		t.Fatalf("backpressure surfaced as error: %v", err)
	}
	g.layer.notReady = false
	g.layer.err = errors.New("layer failed")
	if err := g.render(t, buffer(t, 1, frame.PixelFormat32BGRA, 2, 2, rel)); err != nil {
		t.Fatalf("layer fault surfaced as error: %v", err)
	}
	if rel.n != 2 || len(g.layer.enqueued) != 0 {
		t.Fatalf("released=%d enqueued=%d", rel.n, len(g.layer.enqueued))
	}
	if st := g.renderer.Stats(); st.Dropped != 2 {
		t.Fatalf("expected 2 drops, got %+v", st)
	}
}

func TestRenderer_InactiveBeforeAttach(t *testing.T) {
	main := dispatch.NewSerialQueue("main", discardLogger)
	t.Cleanup(main.Close)
	layer := &fakeLayer{}
	r := NewRenderer(layer, main, nil, Options{Logger: discardLogger})
	if r.State() != StateInactive {
		t.Fatalf("expected inactive, got %v", r.State())
	}
	rel := &released{}
	main.Sync(func() { _ = r.RenderFrame(buffer(t, 0, frame.PixelFormat32BGRA, 2, 2, rel)) })
	if rel.n != 1 || len(layer.enqueued) != 0 {
		t.Fatalf("inactive renderer displayed a frame")
	}
}

func TestRenderer_Lifecycle(t *testing.T) {
	g := newRig(t)
	rel := &released{}
	if err := g.render(t, buffer(t, 0, frame.PixelFormat32BGRA, 2, 2, rel)); err != nil {
		t.Fatalf("render: %v", err)
	}

	g.publish(lifecycle.WillResignActive)
	if g.renderer.State() != StateActive || g.layer.flushes != 1 || rel.n != 1 {
		t.Fatalf("resign active: state=%v flushes=%d released=%d", g.renderer.State(), g.layer.flushes, rel.n)
	}

	g.publish(lifecycle.DidEnterBackground)
	if g.renderer.State() != StateBackgrounded || g.layer.flushes != 2 {
		t.Fatalf("background: state=%v flushes=%d", g.renderer.State(), g.layer.flushes)
	}
	_ = g.render(t, buffer(t, 1, frame.PixelFormat32BGRA, 2, 2, rel))
	if len(g.layer.enqueued) != 1 {
		t.Fatalf("frame rendered while backgrounded")
	}

	g.publish(lifecycle.WillEnterForeground)
	if g.renderer.State() != StateActive {
		t.Fatalf("foreground: state=%v", g.renderer.State())
	}
	_ = g.render(t, buffer(t, 2, frame.PixelFormat32BGRA, 2, 2, rel))
	if len(g.layer.enqueued) != 2 {
		t.Fatalf("frame not rendered after foreground")
	}

	g.main.Sync(g.renderer.Close)
	if g.renderer.State() != StateInactive || g.bus.Subscribers() != 0 {
		t.Fatalf("close: state=%v subscribers=%d", g.renderer.State(), g.bus.Subscribers())
	}
	if rel.n != 3 {
		t.Fatalf("expected all buffers released after close, got %d", rel.n)
	}
}

func TestRenderer_ConsumeFrameMarshalsToMain(t *testing.T) {
	g := newRig(t)
	frames := make([]*frame.Buffer, 5)
	for i := range frames {
		frames[i] = buffer(t, time.Duration(i)*time.Millisecond, frame.PixelFormat32BGRA, 2, 2, nil)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, b := range frames {
			g.renderer.ConsumeFrame(b)
		}
	}()
	<-done
	g.main.Sync(func() {})
	if len(g.layer.enqueued) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(g.layer.enqueued))
	}
	for i := 1; i < len(g.layer.enqueued); i++ {
		if g.layer.enqueued[i].Frame.Timestamp < g.layer.enqueued[i-1].Frame.Timestamp {
			t.Fatalf("renderer reordered frames")
		}
	}
}

func TestRenderer_VideoSizeReadableWhileMainBusy(t *testing.T) {
	g := newRig(t)
	if got := g.renderer.VideoSize(); got != (VideoSize{}) {
		t.Fatalf("initial size = %+v", got)
	}
	if err := g.render(t, buffer(t, 0, frame.PixelFormat32BGRA, 6, 4, nil)); err != nil {
		t.Fatalf("render: %v", err)
	}

	block := make(chan struct{})
	g.main.Async(func() { <-block })
	defer close(block)

	got := make(chan VideoSize, 1)
	go func() { got <- g.renderer.VideoSize() }()
	select {
	case s := <-got:
		if s.Width != 6 || s.Height != 4 {
			t.Fatalf("size = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("VideoSize waited on the main queue")
	}
}

func TestGravityPlacement(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)
	if got := GravityResizeAspect.Placement(100, 100, bounds); got != image.Rect(50, 0, 150, 100) {
		t.Fatalf("aspect: %v", got)
	}
	if got := GravityResizeAspectFill.Placement(100, 100, bounds); got != image.Rect(0, -50, 200, 150) {
		t.Fatalf("aspect fill: %v", got)
	}
	if got := GravityResize.Placement(100, 100, bounds); got != bounds {
		t.Fatalf("resize: %v", got)
	}
	if ParseGravity("fill") != GravityResizeAspectFill || ParseGravity("bogus") != GravityResizeAspect {
		t.Fatalf("unexpected ParseGravity results")
	}
}
