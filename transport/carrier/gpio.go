package carrier

import (
	"context"

	"github.com/chipforge/probekit/gpio"
)

// boardPin is one named pin on the carrier board, driven through the vendor
// control protocol. The board offers plain digital input and push-pull
// output; it has no programmable pulls and no analog circuitry.
type boardPin struct {
	gpio.Unimplemented
	backend Backend
	name    string
}

var _ gpio.Pin = (*boardPin)(nil)

func (p *boardPin) Read(ctx context.Context) (bool, error) {
	return p.backend.PinGetState(ctx, p.name)
}

func (p *boardPin) Write(ctx context.Context, value bool) error {
	return p.backend.PinSetState(ctx, p.name, value)
}

func (p *boardPin) SetMode(ctx context.Context, mode gpio.PinMode) error {
	switch mode {
	case gpio.ModeInput:
		return p.backend.PinSetDirection(ctx, p.name, false)
	case gpio.ModePushPull:
		return p.backend.PinSetDirection(ctx, p.name, true)
	default:
		return &gpio.UnsupportedPinModeError{Mode: mode}
	}
}

func (p *boardPin) SetPullMode(ctx context.Context, pull gpio.PullMode) error {
	if pull == gpio.PullNone {
		return nil
	}
	return &gpio.UnsupportedPullModeError{Pull: pull}
}

func (p *boardPin) Set(ctx context.Context, cfg gpio.Config) error {
	// The control protocol has no composite update; apply each setting in
	// the standard order.
	return gpio.ApplySequentially(ctx, p, cfg)
}

// InternalPinName returns the board net name after alias resolution.
func (p *boardPin) InternalPinName() (string, bool) {
	return p.name, true
}
