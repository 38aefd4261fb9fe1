package sink

// State is the streaming lifecycle of a Sink.
type State int

const (
	Idle State = iota
	Streaming
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of the transmit pipeline.
type Stats struct {
	State         State  `json:"state"`
	Buffers       int    `json:"buffers"`
	BufferLength  int    `json:"bufferLength"`
	Queued        int    `json:"queued"`
	BuffersQueued uint64 `json:"buffersQueued"`
	BuffersSent   uint64 `json:"buffersSent"`
	Underruns     uint64 `json:"underruns"`
	Overruns      uint64 `json:"overruns"`
}

// EventLogger receives pipeline diagnostics such as underruns.
type EventLogger interface {
	LogEvent(level, message string)
}
