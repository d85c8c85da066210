package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soocke/frame-pipeline-go/config"
	"github.com/soocke/frame-pipeline-go/debug"
	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
	"github.com/soocke/frame-pipeline-go/domain/media"
	"github.com/soocke/frame-pipeline-go/domain/render"
	"github.com/soocke/frame-pipeline-go/ui/presenter"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

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

func playerConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Source = config.SourcePlayer
	cfg.Pacing = "interval"
	cfg.IntervalMicros = 5000
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config) (*Pipeline, *presenter.PreviewLayer) {
	t.Helper()
	layer := presenter.NewPreviewLayer(320, 180, discardLogger)
	p := New(cfg, layer, Options{Logger: discardLogger})
	t.Cleanup(p.Close)
	return p, layer
}

func composed(l *presenter.PreviewLayer) uint64 {
	n, _, _ := l.Counts()
	return n
}

func TestPipeline_PlayerRendersIntoPreview(t *testing.T) {
	p, layer := newTestPipeline(t, playerConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := p.Capturer()
	if first == nil || first.State() != capture.StateRunning {
		t.Fatal("capturer not running after start")
	}
	if err := p.Start(); err != nil || p.Capturer() != first {
		t.Fatalf("second start should be a no-op: err=%v", err)
	}

	waitFor(t, "composed preview frames", 3*time.Second, func() bool { return composed(layer) >= 3 })
	if img, _ := layer.Take(); img == nil || img.Rect.Dx() != 320 || img.Rect.Dy() != 180 {
		t.Fatalf("unexpected composed frame: %v", img)
	}

	st := p.Status()
	if st.Source != config.SourcePlayer || st.Capture != capture.StateRunning || st.Renderer != render.StateActive {
		t.Fatalf("status = %+v", st)
	}
	if st.Video.Width != 640 || st.Video.Height != 360 || st.Rendered == 0 {
		t.Fatalf("video/rendered = %+v / %d", st.Video, st.Rendered)
	}

	p.Stop()
	p.Stop()
	if p.Capturer() != nil {
		t.Fatal("capturer kept after stop")
	}
	if st := p.Status(); st.Capture != capture.StateIdle || st.Err != "" {
		t.Fatalf("status after stop = %+v", st)
	}
}

func TestPipeline_RestartBuildsFreshCapturer(t *testing.T) {
	p, layer := newTestPipeline(t, playerConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := p.Capturer()
	p.Stop()
	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if p.Capturer() == nil || p.Capturer().ID() == first.ID() {
		t.Fatal("restart should build a new capturer")
	}
	before := composed(layer)
	waitFor(t, "frames after restart", 3*time.Second, func() bool { return composed(layer) > before })
}

func TestPipeline_StartFailureReported(t *testing.T) {
	cfg := playerConfig()
	cfg.MediaDir = t.TempDir()
	p, _ := newTestPipeline(t, cfg)

	err := p.Start()
	if !errors.Is(err, media.ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
	if p.Capturer() != nil {
		t.Fatal("failed start left a capturer")
	}
	st := p.Status()
	if st.Err == "" || !strings.HasPrefix(presenter.FormatStatus(st), "Capture failed") {
		t.Fatalf("failure not surfaced: %+v", st)
	}
}

func TestPipeline_BackgroundPausesRenderer(t *testing.T) {
	p, layer := newTestPipeline(t, playerConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first frame", 3*time.Second, func() bool { return composed(layer) >= 1 })

	p.Bus().Publish(lifecycle.WillResignActive)
	p.Bus().Publish(lifecycle.DidEnterBackground)
	waitFor(t, "backgrounded renderer", time.Second, func() bool {
		return p.Status().Renderer == render.StateBackgrounded
	})
	p.main.Sync(func() {})
	if _, flushed := layer.Take(); !flushed {
		t.Fatal("background should flush the layer")
	}

	p.Bus().Publish(lifecycle.WillEnterForeground)
	p.Bus().Publish(lifecycle.DidBecomeActive)
	waitFor(t, "active renderer", time.Second, func() bool {
		return p.Status().Renderer == render.StateActive
	})
	before := composed(layer)
	waitFor(t, "frames after foreground", 3*time.Second, func() bool { return composed(layer) > before })
}

func TestPipeline_WindowMinimiseBackgroundsRenderer(t *testing.T) {
	p, layer := newTestPipeline(t, playerConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first frame", 3*time.Second, func() bool { return composed(layer) >= 1 })

	w := presenter.NewFocusWatcher(p.Bus(), discardLogger)
	w.Unmapped()
	w.Tick()
	waitFor(t, "backgrounded renderer", time.Second, func() bool {
		return p.Status().Renderer == render.StateBackgrounded
	})

	w.Mapped()
	w.Tick()
	waitFor(t, "active renderer", time.Second, func() bool {
		return p.Status().Renderer == render.StateActive
	})
	before := composed(layer)
	waitFor(t, "frames after restore", 3*time.Second, func() bool { return composed(layer) > before })
}

func TestPipeline_SaveFrameWritesLatest(t *testing.T) {
	p, layer := newTestPipeline(t, playerConfig())
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := p.SaveFrame(path); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("err = %v, want ErrNoFrame", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first frame", 3*time.Second, func() bool { return composed(layer) >= 1 })
	if err := p.SaveFrame(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 360 {
		t.Fatalf("saved frame bounds = %v", b)
	}

	p.Stop()
	if err := p.SaveFrame(path); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("after stop err = %v, want ErrNoFrame", err)
	}
}

func TestPipeline_SetGravityReachesLayer(t *testing.T) {
	p, layer := newTestPipeline(t, playerConfig())
	if layer.Gravity() != render.GravityResizeAspect {
		t.Fatalf("initial gravity = %v", layer.Gravity())
	}
	p.SetGravity("fill")
	if layer.Gravity() != render.GravityResizeAspectFill {
		t.Fatalf("gravity = %v", layer.Gravity())
	}
}

func TestPipeline_CloseRejectsStart(t *testing.T) {
	p, _ := newTestPipeline(t, playerConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Close()
	p.Close()
	if err := p.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) messages(t *testing.T) []string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		out = append(out, rec["msg"].(string))
	}
	return out
}

func TestPipeline_ReportersFollowSession(t *testing.T) {
	p, _ := newTestPipeline(t, playerConfig())
	var out syncBuffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))

	debug.LogReports(logger, p.Reporters()...)
	if got := out.messages(t); len(got) != 1 || got[0] != "renderer.stats" {
		t.Fatalf("idle reporters = %v", got)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	out.mu.Lock()
	out.buf.Reset()
	out.mu.Unlock()
	debug.LogReports(logger, p.Reporters()...)
	if got := out.messages(t); len(got) != 2 || got[0] != "capturer.stats" {
		t.Fatalf("running reporters = %v", got)
	}
}
