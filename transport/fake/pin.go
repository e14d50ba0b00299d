package fake

import (
	"context"
	"sync"

	"github.com/chipforge/probekit/gpio"
)

// Voltage range of the fake's analog circuitry.
const (
	analogMinVolts = 0.0
	analogMaxVolts = 3.3
)

// Pin is an in-memory pin. It remembers the configuration applied to it so
// tests can assert on round trips.
type Pin struct {
	mu        sync.Mutex
	transport *Transport
	name      string

	mode   gpio.PinMode
	pull   gpio.PullMode
	value  bool
	analog float64
}

var _ gpio.Pin = (*Pin)(nil)

func (p *Pin) supportsMode(mode gpio.PinMode) bool {
	for _, m := range p.transport.cfg.SupportedModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (p *Pin) supportsPull(pull gpio.PullMode) bool {
	for _, m := range p.transport.cfg.SupportedPulls {
		if m == pull {
			return true
		}
	}
	return false
}

// Read returns the last driven or injected level.
func (p *Pin) Read(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, nil
}

// Write drives the pin; writing a pin configured as input is a mode error.
func (p *Pin) Write(ctx context.Context, value bool) error {
	p.mu.Lock()
	if p.mode == gpio.ModeInput {
		name, mode := p.name, p.mode
		p.mu.Unlock()
		return &gpio.InvalidPinModeError{Name: name, Mode: mode, Op: "write"}
	}
	changed := p.value != value
	p.value = value
	p.mu.Unlock()
	if changed {
		p.transport.monitor.recordEdge(p, value)
	}
	return nil
}

// SetMode applies one of the declared supported modes.
func (p *Pin) SetMode(ctx context.Context, mode gpio.PinMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.supportsMode(mode) {
		return &gpio.UnsupportedPinModeError{Mode: mode}
	}
	p.mode = mode
	return nil
}

// SetPullMode applies one of the declared supported pulls.
func (p *Pin) SetPullMode(ctx context.Context, pull gpio.PullMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.supportsPull(pull) {
		return &gpio.UnsupportedPullModeError{Pull: pull}
	}
	p.pull = pull
	return nil
}

// AnalogRead returns the stored analog value when analog is enabled.
func (p *Pin) AnalogRead(ctx context.Context) (float64, error) {
	if !p.transport.cfg.Analog {
		return 0, gpio.ErrAnalogUnsupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analog, nil
}

// AnalogWrite stores the analog value when analog is enabled and the voltage
// is in range.
func (p *Pin) AnalogWrite(ctx context.Context, volts float64) error {
	if !p.transport.cfg.Analog {
		return gpio.ErrAnalogUnsupported
	}
	if volts < analogMinVolts || volts > analogMaxVolts {
		return &gpio.UnsupportedVoltageError{Volts: volts}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analog = volts
	return nil
}

// Set applies the settings sequentially; the fake has no atomic composite
// update.
func (p *Pin) Set(ctx context.Context, cfg gpio.Config) error {
	return gpio.ApplySequentially(ctx, p, cfg)
}

// InternalPinName returns the fake's wire-level name, which is the name the
// pin was requested under.
func (p *Pin) InternalPinName() (string, bool) {
	return p.name, true
}

// Mode returns the configured mode, for tests.
func (p *Pin) Mode() gpio.PinMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Pull returns the configured pull, for tests.
func (p *Pin) Pull() gpio.PullMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// InjectLevel sets the level as if driven by the target, emitting an edge to
// the monitor on change.
func (p *Pin) InjectLevel(level bool) {
	p.mu.Lock()
	changed := p.value != level
	p.value = level
	p.mu.Unlock()
	if changed {
		p.transport.monitor.recordEdge(p, level)
	}
}
