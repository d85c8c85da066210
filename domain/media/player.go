// Package media plays a sequence of still images as a timed video output
// that a pull capture source can query.
package media

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

var (
	// ErrEmpty is returned for a sequence without frames.
	ErrEmpty = errors.New("media: empty sequence")
	// ErrMixedSizes is returned when frames differ in size.
	ErrMixedSizes = errors.New("media: frames differ in size")
)

// Options configures a SequencePlayer.
type Options struct {
	// FrameRate of the sequence. Defaults to 30.
	FrameRate int
	// Loop restarts the sequence at the end instead of holding the last
	// frame.
	Loop   bool
	Clock  pacing.Clock
	Logger *slog.Logger
}

// SequencePlayer is a capture.Timeline over in-memory images. Item time
// keeps increasing across loops so display times never go backwards
// except after Seek.
type SequencePlayer struct {
	frames    []image.Image
	frameDur  time.Duration
	loop      bool
	clock     pacing.Clock
	logger    *slog.Logger
	converter *converter

	mu         sync.Mutex
	playing    bool
	anchorHost time.Duration
	anchorItem time.Duration
	lastServed int64
	settings   capture.OutputSettings
	observers  map[int]capture.TimelineObserver
	nextObs    int
	pending    bool
	notify     *time.Timer
}

// NewSequencePlayer returns a paused player positioned at the first frame.
func NewSequencePlayer(frames []image.Image, opts Options) (*SequencePlayer, error) {
	if len(frames) == 0 {
		return nil, ErrEmpty
	}
	size := frames[0].Bounds().Size()
	for _, f := range frames[1:] {
		if f.Bounds().Size() != size {
			return nil, ErrMixedSizes
		}
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.Clock == nil {
		opts.Clock = pacing.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &SequencePlayer{
		frames:     frames,
		frameDur:   time.Second / time.Duration(opts.FrameRate),
		loop:       opts.Loop,
		clock:      opts.Clock,
		logger:     opts.Logger,
		converter:  newConverter(),
		lastServed: -1,
		observers:  make(map[int]capture.TimelineObserver),
	}, nil
}

// FrameDuration is the display time of one frame.
func (p *SequencePlayer) FrameDuration() time.Duration { return p.frameDur }

// Duration is the length of one pass through the sequence.
func (p *SequencePlayer) Duration() time.Duration {
	return time.Duration(len(p.frames)) * p.frameDur
}

// Playing reports whether the item clock advances.
func (p *SequencePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *SequencePlayer) PresentationSize() (int, int) {
	s := p.frames[0].Bounds().Size()
	return s.X, s.Y
}

func (p *SequencePlayer) ConfigureOutput(s capture.OutputSettings) {
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
	p.logger.Debug("player output configured", "width", s.Width, "height", s.Height, "format", s.PixelFormat.String())
}

// Play starts the item clock from the current position.
func (p *SequencePlayer) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.anchorHost = p.clock.Now()
	p.playing = true
	notify := p.takePendingLocked()
	p.mu.Unlock()
	p.logger.Info("player playing")
	p.fire(notify, nil)
}

// Pause freezes the item clock.
func (p *SequencePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.anchorItem = p.itemAtLocked(p.clock.Now())
	p.playing = false
	p.stopNotifyLocked()
}

// Seek moves the item clock to pos and signals a discontinuity.
func (p *SequencePlayer) Seek(pos time.Duration) {
	if pos < 0 {
		pos = 0
	}
	p.mu.Lock()
	p.anchorItem = pos
	p.anchorHost = p.clock.Now()
	p.lastServed = -1
	flushed := p.observerListLocked()
	notify := p.takePendingLocked()
	p.mu.Unlock()
	p.logger.Debug("player seek", "position", pos)
	p.fire(notify, flushed)
}

func (p *SequencePlayer) itemAtLocked(host time.Duration) time.Duration {
	item := p.anchorItem
	if p.playing && host > p.anchorHost {
		item += host - p.anchorHost
	}
	if !p.loop {
		if end := p.Duration() - p.frameDur; item > end {
			item = end
		}
	}
	return item
}

func (p *SequencePlayer) ItemTimeForHostTime(host time.Duration) frame.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return frame.MicrosTime(p.itemAtLocked(host))
}

// frameNumber is the unwrapped frame count at item.
func (p *SequencePlayer) frameNumber(item time.Duration) int64 {
	if item < 0 {
		return 0
	}
	return int64(item / p.frameDur)
}

func (p *SequencePlayer) HasNewBuffer(t frame.Time) bool {
	if !t.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameNumber(t.Duration()) != p.lastServed
}

func (p *SequencePlayer) CopyBuffer(t frame.Time) (*capture.ImageBuffer, frame.Time, bool) {
	if !t.Valid() {
		return nil, frame.InvalidTime, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.frameNumber(t.Duration())
	idx := int(n % int64(len(p.frames)))
	buf, err := p.converter.convert(idx, p.frames[idx], p.settings)
	if err != nil {
		p.logger.Warn("player frame conversion failed", "frame", n, "error", err)
		return nil, frame.InvalidTime, false
	}
	p.lastServed = n
	return buf, frame.MicrosTime(time.Duration(n) * p.frameDur), true
}

func (p *SequencePlayer) Observe(o capture.TimelineObserver) func() {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = o
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// RequestMediaDataChange schedules one MediaDataWillChange advance before
// the next frame boundary. While paused it fires on Play or Seek.
func (p *SequencePlayer) RequestMediaDataChange(advance time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = true
	if !p.playing {
		return
	}
	now := p.clock.Now()
	item := p.itemAtLocked(now)
	next := time.Duration(p.frameNumber(item)+1) * p.frameDur
	wait := next - item - advance
	if wait < 0 {
		wait = 0
	}
	p.stopNotifyLocked()
	p.notify = time.AfterFunc(wait, func() {
		p.mu.Lock()
		notify := p.takePendingLocked()
		p.mu.Unlock()
		p.fire(notify, nil)
	})
}

func (p *SequencePlayer) stopNotifyLocked() {
	if p.notify != nil {
		p.notify.Stop()
		p.notify = nil
	}
}

func (p *SequencePlayer) takePendingLocked() []capture.TimelineObserver {
	if !p.pending {
		return nil
	}
	p.pending = false
	return p.observerListLocked()
}

func (p *SequencePlayer) observerListLocked() []capture.TimelineObserver {
	out := make([]capture.TimelineObserver, 0, len(p.observers))
	for _, o := range p.observers {
		out = append(out, o)
	}
	return out
}

func (p *SequencePlayer) fire(willChange, flushed []capture.TimelineObserver) {
	for _, o := range flushed {
		o.SequenceFlushed()
	}
	for _, o := range willChange {
		o.MediaDataWillChange()
	}
}

// Close cancels any scheduled notification.
func (p *SequencePlayer) Close() error {
	p.mu.Lock()
	p.stopNotifyLocked()
	p.observers = make(map[int]capture.TimelineObserver)
	p.mu.Unlock()
	return nil
}
