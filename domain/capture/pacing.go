package capture

import (
	"github.com/soocke/frame-pipeline-go/domain/dispatch"
	"github.com/soocke/frame-pipeline-go/domain/pacing"
)

// TimerFactory builds the pacing timer for a session. Sources default to
// pacing.New; tests substitute a manual timer.
type TimerFactory func(cfg pacing.Config, q dispatch.Queue, clock pacing.Clock) (pacing.Timer, error)

func defaultTimerFactory(cfg pacing.Config, q dispatch.Queue, clock pacing.Clock) (pacing.Timer, error) {
	return pacing.New(cfg, q, clock)
}
