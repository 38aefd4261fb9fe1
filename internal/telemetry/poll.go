package telemetry

import (
	"context"
	"time"

	"github.com/rjboer/txsink/internal/sink"
)

// StatsSource is anything that can snapshot sink statistics.
type StatsSource interface {
	Stats() sink.Stats
}

// Poll reports a snapshot of src every interval until ctx is done. A final
// snapshot is reported on exit.
func Poll(ctx context.Context, src StatsSource, interval time.Duration, r Reporter) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Report(FromStats(src.Stats(), time.Now()))
			return
		case now := <-ticker.C:
			r.Report(FromStats(src.Stats(), now))
		}
	}
}
