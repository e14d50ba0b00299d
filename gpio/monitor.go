package gpio

import "context"

// Edge identifies the direction of a detected level change.
type Edge int

// Edge directions.
const (
	Rising Edge = iota
	Falling
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "Rising"
	case Falling:
		return "Falling"
	default:
		return "Unknown"
	}
}

// ClockNature describes how to interpret the 64-bit timestamps in monitoring
// responses.
type ClockNature struct {
	// Wallclock is true when Unix time can be computed as
	// (t + Offset) / Resolution.
	Wallclock bool
	// Resolution is the number of timestamp ticks per second. If the
	// resolution is microseconds, Resolution is 1_000_000.
	Resolution uint64
	// Offset is relative to the Unix epoch, measured in ticks of the above
	// resolution. Nil when the transport cannot relate its clock to the
	// epoch. When Wallclock is false, timestamps increase monotonically but
	// not necessarily uniformly in relation to wall clock time.
	Offset *uint64
}

// MonitoringEvent is one edge detected on a monitored pin.
type MonitoringEvent struct {
	// SignalIndex identifies the signal, as an index into the pin slice
	// originally passed to MonitoringStart.
	SignalIndex int
	Edge        Edge
	// Timestamp of the edge; resolution and epoch are transport-specific,
	// see ClockNature.
	Timestamp uint64
}

// MonitoringStartResponse reports the state captured when monitoring is
// armed.
type MonitoringStartResponse struct {
	// Timestamp at the time monitoring started.
	Timestamp uint64
	// InitialLevels holds the instantaneous level of each pin, positionally.
	InitialLevels []bool
}

// MonitoringReadResponse carries the edges buffered since the previous read
// (or the start call).
type MonitoringReadResponse struct {
	Events []MonitoringEvent
	// Timestamp is a watermark: every edge at or before it is guaranteed to
	// be present in Events.
	Timestamp uint64
}

// A Monitor is implemented by transports that support buffered edge capture
// across a set of pins.
type Monitor interface {
	ClockNature(ctx context.Context) (ClockNature, error)

	// MonitoringStart arms edge detection on exactly the given ordered pins
	// and returns each pin's level at arm time.
	MonitoringStart(ctx context.Context, pins []Pin) (MonitoringStartResponse, error)

	// MonitoringRead drains buffered edges. When continueMonitoring is false
	// the possibly expensive edge detection is stopped after the read. A
	// buffer overrun is reported as an error and stops edge detection
	// regardless of continueMonitoring.
	MonitoringRead(ctx context.Context, pins []Pin, continueMonitoring bool) (MonitoringReadResponse, error)
}
