package capture

import "time"

// Stats summarises capturer behaviour for instrumentation.
type Stats struct {
	Captures         uint64
	Delivered        uint64
	Skipped          uint64
	Dropped          uint64
	Backpressured    uint64
	Discarded        uint64
	Invalid          uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
	Sequence         uint64
	State            State

	// Source counters; zero for sources that do not keep them.
	Regressions    uint64
	RecorderErrors uint64
	IgnoredSamples uint64
}
