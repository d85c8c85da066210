//go:build !unix

package lifecycle

import "context"

// WatchSignals is a no-op where user signals are unavailable.
func WatchSignals(ctx context.Context, bus *Bus) {}
