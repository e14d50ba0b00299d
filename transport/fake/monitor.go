package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/chipforge/probekit/gpio"
)

// monitorBufferCap bounds the edge buffer; filling it past this is an
// overrun.
const monitorBufferCap = 256

// Monitor is the fake's edge monitor. Edges are produced by Pin.InjectLevel
// and Pin.Write; an overrun can also be forced directly for tests.
type Monitor struct {
	mu        sync.Mutex
	transport *Transport
	armed     bool
	watched   map[*Pin]int
	clock     uint64
	events    []gpio.MonitoringEvent
	overrun   bool
}

var _ gpio.Monitor = (*Monitor)(nil)

func newMonitor(t *Transport) *Monitor {
	return &Monitor{transport: t}
}

// ClockNature reports a monotonic, non-uniform clock.
func (m *Monitor) ClockNature(ctx context.Context) (gpio.ClockNature, error) {
	return gpio.ClockNature{Wallclock: false}, nil
}

// MonitoringStart arms edge detection on exactly the given pins.
func (m *Monitor) MonitoringStart(ctx context.Context, pins []gpio.Pin) (gpio.MonitoringStartResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	watched := make(map[*Pin]int, len(pins))
	levels := make([]bool, len(pins))
	for i, pin := range pins {
		fp, ok := pin.(*Pin)
		if !ok {
			return gpio.MonitoringStartResponse{}, errors.Errorf("pin %d is not a fake pin", i)
		}
		watched[fp] = i
		levels[i] = fp.value
	}
	m.armed = true
	m.watched = watched
	m.events = nil
	m.overrun = false
	m.clock++
	return gpio.MonitoringStartResponse{Timestamp: m.clock, InitialLevels: levels}, nil
}

// MonitoringRead drains buffered edges. An overrun always disarms
// monitoring, even when continueMonitoring was requested.
func (m *Monitor) MonitoringRead(ctx context.Context, pins []gpio.Pin, continueMonitoring bool) (gpio.MonitoringReadResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed {
		return gpio.MonitoringReadResponse{}, errors.New("monitoring is not armed")
	}
	if m.overrun {
		m.disarmLocked()
		return gpio.MonitoringReadResponse{}, errors.New("monitoring buffer overrun")
	}
	events := m.events
	m.events = nil
	m.clock++
	if !continueMonitoring {
		m.disarmLocked()
	}
	return gpio.MonitoringReadResponse{Events: events, Timestamp: m.clock}, nil
}

func (m *Monitor) disarmLocked() {
	m.armed = false
	m.watched = nil
	m.events = nil
	m.overrun = false
}

// ForceOverrun marks the buffer as overrun; the next read reports it.
func (m *Monitor) ForceOverrun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrun = true
}

func (m *Monitor) recordEdge(pin *Pin, level bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed {
		return
	}
	index, ok := m.watched[pin]
	if !ok {
		return
	}
	if len(m.events) >= monitorBufferCap {
		m.overrun = true
		return
	}
	edge := gpio.Falling
	if level {
		edge = gpio.Rising
	}
	m.clock++
	m.events = append(m.events, gpio.MonitoringEvent{
		SignalIndex: index,
		Edge:        edge,
		Timestamp:   m.clock,
	})
}
