package telemetry

import (
	"github.com/rjboer/txsink/internal/logging"
)

// Reporter receives pipeline statistics.
type Reporter interface {
	Report(sample Sample)
}

// StdoutReporter writes samples through the logger. Idle samples that
// repeat the previous counters are dropped.
type StdoutReporter struct {
	logger logging.Logger
	last   *Sample
}

// NewStdoutReporter builds a reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) *StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &StdoutReporter{logger: logger.With(logging.F("subsystem", "telemetry"))}
}

func (r *StdoutReporter) Report(sample Sample) {
	if r.last != nil && unchanged(*r.last, sample) {
		return
	}
	r.last = &sample

	fields := []logging.Field{
		{Key: "state", Value: sample.State},
		{Key: "queued", Value: sample.Queued},
		{Key: "buffers_sent", Value: sample.BuffersSent},
	}
	if sample.BuffersPerSecond != 0 {
		fields = append(fields, logging.Field{Key: "buffers_per_sec", Value: sample.BuffersPerSecond})
	}
	if sample.Underruns != 0 {
		fields = append(fields, logging.Field{Key: "underruns", Value: sample.Underruns})
	}
	if sample.Overruns != 0 {
		fields = append(fields, logging.Field{Key: "overruns", Value: sample.Overruns})
	}
	r.logger.Info("tx stats", fields...)
}

func unchanged(a, b Sample) bool {
	return a.State == b.State &&
		a.Queued == b.Queued &&
		a.BuffersSent == b.BuffersSent &&
		a.Underruns == b.Underruns &&
		a.Overruns == b.Overruns
}
