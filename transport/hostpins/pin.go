package hostpins

import (
	"context"
	"sync"

	periphgpio "periph.io/x/conn/v3/gpio"

	"github.com/chipforge/probekit/gpio"
)

// hostPin adapts one periph.io pin to the probe pin contract.
type hostPin struct {
	gpio.Unimplemented
	mu  sync.Mutex
	pin periphgpio.PinIO

	// Desired configuration, reapplied when mode or pull changes.
	mode  gpio.PinMode
	pull  gpio.PullMode
	level bool
}

var _ gpio.Pin = (*hostPin)(nil)

func toPeriphPull(pull gpio.PullMode) periphgpio.Pull {
	switch pull {
	case gpio.PullUp:
		return periphgpio.PullUp
	case gpio.PullDown:
		return periphgpio.PullDown
	default:
		return periphgpio.Float
	}
}

func (p *hostPin) Read(ctx context.Context) (bool, error) {
	return p.pin.Read() == periphgpio.High, nil
}

func (p *hostPin) Write(ctx context.Context, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == gpio.ModeInput {
		return &gpio.InvalidPinModeError{Name: p.pin.Name(), Mode: p.mode, Op: "write"}
	}
	if err := p.pin.Out(periphgpio.Level(value)); err != nil {
		return err
	}
	p.level = value
	return nil
}

func (p *hostPin) SetMode(ctx context.Context, mode gpio.PinMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch mode {
	case gpio.ModeInput:
		if err := p.pin.In(toPeriphPull(p.pull), periphgpio.NoEdge); err != nil {
			return err
		}
	case gpio.ModePushPull:
		if err := p.pin.Out(periphgpio.Level(p.level)); err != nil {
			return err
		}
	default:
		return &gpio.UnsupportedPinModeError{Mode: mode}
	}
	p.mode = mode
	return nil
}

func (p *hostPin) SetPullMode(ctx context.Context, pull gpio.PullMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pull = pull
	if p.mode == gpio.ModeInput {
		// Pulls only take effect through In; reapply.
		return p.pin.In(toPeriphPull(pull), periphgpio.NoEdge)
	}
	return nil
}

func (p *hostPin) Set(ctx context.Context, cfg gpio.Config) error {
	return gpio.ApplySequentially(ctx, p, cfg)
}

// InternalPinName returns the periph registry name.
func (p *hostPin) InternalPinName() (string, bool) {
	return p.pin.Name(), true
}
