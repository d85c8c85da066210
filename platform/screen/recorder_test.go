package screen

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/frame"
)

func fakeScreen() (image.Rectangle, error) { return image.Rect(0, 0, 100, 50), nil }

func redGrab(dst *image.RGBA, _ image.Rectangle) error {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = 255, 0, 0, 255
	}
	return nil
}

type sampleLog struct {
	mu      sync.Mutex
	samples []*capture.SampleBuffer
	errs    int
}

func (l *sampleLog) handle(sb *capture.SampleBuffer, typ capture.SampleType, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.errs++
		return
	}
	l.samples = append(l.samples, sb)
}

func (l *sampleLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

func TestResolve(t *testing.T) {
	if r, err := resolve(image.Rectangle{}, fakeScreen); err != nil || r != image.Rect(0, 0, 100, 50) {
		t.Fatalf("empty region: %v %v", r, err)
	}
	if r, err := resolve(image.Rect(90, 40, 200, 200), fakeScreen); err != nil || r != image.Rect(90, 40, 100, 50) {
		t.Fatalf("clipped region: %v %v", r, err)
	}
	if _, err := resolve(image.Rect(200, 200, 300, 300), fakeScreen); err == nil {
		t.Fatalf("expected error for off-screen region")
	}
	noScreen := func() (image.Rectangle, error) { return image.Rectangle{}, errors.New("no display") }
	if _, err := resolve(image.Rectangle{}, noScreen); err == nil {
		t.Fatalf("expected error without a display")
	}
}

func TestRecorder_PushesBGRASamples(t *testing.T) {
	rec := NewRecorder(RecorderOptions{Region: image.Rect(10, 10, 14, 12), FrameRate: 100, Screen: fakeScreen, Grab: redGrab})
	if !rec.Available() {
		t.Fatalf("recorder unavailable")
	}
	if f := rec.Format(); f.Width != 4 || f.Height != 2 || f.PixelFormat != frame.PixelFormat32BGRA {
		t.Fatalf("unexpected format %+v", f)
	}
	log := &sampleLog{}
	if err := rec.StartCapture(log.handle); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rec.StartCapture(log.handle); !errors.Is(err, ErrRecording) {
		t.Fatalf("expected ErrRecording, got %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for log.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := rec.StopCapture(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	n := log.count()
	if n < 3 {
		t.Fatalf("expected at least 3 samples, got %d", n)
	}
	time.Sleep(30 * time.Millisecond)
	if log.count() != n {
		t.Fatalf("samples delivered after stop")
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	first := log.samples[0]
	px := first.Image.Payload.Plane(0).Data
	if px[0] != 0 || px[2] != 255 {
		t.Fatalf("expected BGRA red, got %v", px[:4])
	}
	for i := 1; i < len(log.samples); i++ {
		if log.samples[i].PresentationTime.Compare(log.samples[i-1].PresentationTime) < 0 {
			t.Fatalf("sample timestamps regress")
		}
	}
	for _, sb := range log.samples {
		sb.Release()
	}
}

func TestRecorder_GrabErrorsReported(t *testing.T) {
	rec := NewRecorder(RecorderOptions{
		FrameRate: 100,
		Screen:    fakeScreen,
		Grab:      func(*image.RGBA, image.Rectangle) error { return errors.New("grab failed") },
	})
	log := &sampleLog{}
	if err := rec.StartCapture(log.handle); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		log.mu.Lock()
		errs := log.errs
		log.mu.Unlock()
		if errs > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = rec.StopCapture()
	if log.errs == 0 || log.count() != 0 {
		t.Fatalf("errs=%d samples=%d", log.errs, log.count())
	}
}

func TestRecorder_FeedsPushSource(t *testing.T) {
	rec := NewRecorder(RecorderOptions{Region: image.Rect(0, 0, 4, 2), FrameRate: 100, Screen: fakeScreen, Grab: redGrab})
	src := capture.NewPushSource(rec, capture.PushOptions{Format: rec.Format()})
	c := capture.NewCapturer(src, capture.Options{})
	defer c.Close()
	latest := &capture.LatestFrame{}
	if err := c.StartCapture(rec.Format(), latest); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for latest.Count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.StopCapture()
	if latest.Count() < 2 {
		t.Fatalf("expected frames through the push source, got %d", latest.Count())
	}
	b := latest.Latest()
	if b == nil || b.Width != 4 || b.Format != frame.PixelFormat32BGRA {
		t.Fatalf("unexpected latest frame %+v", b)
	}
	b.Release()
	latest.Reset()
}
