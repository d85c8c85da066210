//go:build unix

package lifecycle

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// WatchSignals maps SIGUSR1 to did-enter-background and SIGUSR2 to
// will-enter-foreground until ctx is done.
func WatchSignals(ctx context.Context, bus *Bus) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, unix.SIGUSR1, unix.SIGUSR2)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-ch:
				switch s {
				case unix.SIGUSR1:
					bus.Publish(WillResignActive)
					bus.Publish(DidEnterBackground)
				case unix.SIGUSR2:
					bus.Publish(WillEnterForeground)
					bus.Publish(DidBecomeActive)
				}
			}
		}
	}()
}
