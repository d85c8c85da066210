package debug

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/soocke/frame-pipeline-go/domain/capture"
	"github.com/soocke/frame-pipeline-go/domain/frame"
	"github.com/soocke/frame-pipeline-go/domain/render"
)

// Reporter produces the attributes of one stats line.
type Reporter struct {
	Name string
	Read func() []any
}

// CapturerReporter reports capturer counters.
func CapturerReporter(c *capture.Capturer) Reporter {
	return Reporter{Name: "capturer", Read: func() []any {
		s := c.Stats()
		last := "never"
		if !s.LastCapture.IsZero() {
			last = humanize.Time(s.LastCapture)
		}
		return []any{
			"id", c.ID(),
			"state", s.State.String(),
			"delivered", humanize.Comma(int64(s.Delivered)),
			"skipped", humanize.Comma(int64(s.Skipped)),
			"dropped", s.Dropped,
			"backpressured", s.Backpressured,
			"discarded", s.Discarded,
			"invalid", s.Invalid,
			"regressions", s.Regressions,
			"recorder_errors", s.RecorderErrors,
			"ignored_samples", s.IgnoredSamples,
			"avg_capture_us", humanize.FtoaWithDigits(s.AvgCaptureMicros, 1),
			"last_capture", last,
		}
	}}
}

// RendererReporter reports renderer counters.
func RendererReporter(r *render.Renderer) Reporter {
	return Reporter{Name: "renderer", Read: func() []any {
		s := r.Stats()
		return []any{
			"state", s.State.String(),
			"rendered", humanize.Comma(int64(s.Rendered)),
			"dropped", s.Dropped,
			"rejected", s.Rejected,
			"format_changes", s.FormatChanges,
		}
	}}
}

// PoolReporter reports a frame pool. read may report ok=false when no pool is
// in use, in which case the line is skipped.
func PoolReporter(read func() (frame.PoolStats, bool)) Reporter {
	return Reporter{Name: "pool", Read: func() []any {
		s, ok := read()
		if !ok {
			return nil
		}
		return []any{
			"slots", s.Slots,
			"in_use", s.InUse,
			"acquired", humanize.Comma(int64(s.Acquired)),
			"exhausted", s.Exhausted,
			"bytes", humanize.IBytes(s.Bytes),
		}
	}}
}

// StartStatsLogger logs one line per reporter every interval until ctx ends.
func StartStatsLogger(ctx context.Context, interval time.Duration, logger *slog.Logger, reporters ...Reporter) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				LogReports(logger, reporters...)
			}
		}
	}()
}

// LogReports writes one stats line per reporter.
func LogReports(logger *slog.Logger, reporters ...Reporter) {
	for _, p := range reporters {
		attrs := p.Read()
		if attrs == nil {
			continue
		}
		logger.Info(p.Name+".stats", attrs...)
	}
}
