package presenter

import (
	"log/slog"

	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
)

// LifecyclePublisher receives application lifecycle events.
type LifecyclePublisher interface {
	Publish(e lifecycle.Event)
}

// FocusWatcher turns main window visibility and focus into lifecycle events.
// Tk bindings record what the window did; Tick publishes the resulting
// transitions, so a focus hop between child widgets inside one event batch
// publishes nothing. All methods run on the Tk thread.
type FocusWatcher struct {
	bus    LifecyclePublisher
	logger *slog.Logger

	mapped  bool
	focused bool

	background bool
	resigned   bool
}

// NewFocusWatcher starts in the foreground and active, matching a freshly
// shown window.
func NewFocusWatcher(bus LifecyclePublisher, logger *slog.Logger) *FocusWatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FocusWatcher{bus: bus, logger: logger, mapped: true, focused: true}
}

// Mapped records the window being shown again. A shown window counts as
// focused until told otherwise.
func (w *FocusWatcher) Mapped() {
	if w == nil {
		return
	}
	w.mapped, w.focused = true, true
}

// Unmapped records the window being minimised or withdrawn.
func (w *FocusWatcher) Unmapped() {
	if w == nil {
		return
	}
	w.mapped = false
}

// FocusIn records keyboard focus entering the window.
func (w *FocusWatcher) FocusIn() {
	if w == nil {
		return
	}
	w.focused = true
}

// FocusOut records keyboard focus leaving the window.
func (w *FocusWatcher) FocusOut() {
	if w == nil {
		return
	}
	w.focused = false
}

// Background reports whether the last published state is backgrounded.
func (w *FocusWatcher) Background() bool { return w != nil && w.background }

// Active reports whether the last published state is foreground and active.
func (w *FocusWatcher) Active() bool { return w != nil && !w.background && !w.resigned }

// Tick publishes the events that move the published state to the recorded one.
func (w *FocusWatcher) Tick() {
	if w == nil || w.bus == nil {
		return
	}
	if !w.mapped {
		if !w.resigned {
			w.publish(lifecycle.WillResignActive)
			w.resigned = true
		}
		if !w.background {
			w.publish(lifecycle.DidEnterBackground)
			w.background = true
		}
		return
	}
	if w.background {
		w.publish(lifecycle.WillEnterForeground)
		w.background = false
	}
	switch {
	case w.focused && w.resigned:
		w.publish(lifecycle.DidBecomeActive)
		w.resigned = false
	case !w.focused && !w.resigned:
		w.publish(lifecycle.WillResignActive)
		w.resigned = true
	}
}

func (w *FocusWatcher) publish(e lifecycle.Event) {
	w.logger.Debug("window lifecycle", "event", e.String())
	w.bus.Publish(e)
}
