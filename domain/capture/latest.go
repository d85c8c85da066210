package capture

import (
	"sync"

	"github.com/soocke/frame-pipeline-go/domain/frame"
)

// LatestFrame is a Consumer that keeps only the newest buffer.
type LatestFrame struct {
	mu      sync.Mutex
	started bool
	acked   bool
	last    *frame.Buffer
	count   uint64
}

func (l *LatestFrame) CaptureStarted(ok bool) {
	l.mu.Lock()
	l.acked = true
	l.started = ok
	l.mu.Unlock()
}

func (l *LatestFrame) ConsumeFrame(b *frame.Buffer) {
	l.mu.Lock()
	prev := l.last
	l.last = b
	l.count++
	l.mu.Unlock()
	prev.Release()
}

// Started reports the start acknowledgement, if one arrived.
func (l *LatestFrame) Started() (ok, acked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started, l.acked
}

// Latest returns a retained reference to the newest buffer or nil. The
// caller must Release it.
func (l *LatestFrame) Latest() *frame.Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return nil
	}
	return l.last.Retain()
}

// Count returns the number of buffers consumed.
func (l *LatestFrame) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Reset releases the held buffer.
func (l *LatestFrame) Reset() {
	l.mu.Lock()
	prev := l.last
	l.last = nil
	l.mu.Unlock()
	prev.Release()
}

// Tee hands each frame to Primary and a retained reference to every
// observer. Readiness follows Primary.
type Tee struct {
	Primary   Consumer
	Observers []Consumer
}

func (t *Tee) CaptureStarted(ok bool) {
	for _, o := range t.Observers {
		o.CaptureStarted(ok)
	}
	t.Primary.CaptureStarted(ok)
}

func (t *Tee) ConsumeFrame(b *frame.Buffer) {
	for _, o := range t.Observers {
		o.ConsumeFrame(b.Retain())
	}
	t.Primary.ConsumeFrame(b)
}

func (t *Tee) ReadyForFrames() bool {
	if r, ok := t.Primary.(ReadinessReporter); ok {
		return r.ReadyForFrames()
	}
	return true
}
