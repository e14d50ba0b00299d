// Package hostpins exposes GPIO pins and SPI ports attached directly to the
// host (SBC headers, FTDI adapters, spidev) through the probe contracts, for
// bench setups with no dedicated debug probe in between. It is a thin
// adapter over periph.io's host drivers.
package hostpins

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/chipforge/probekit/gpio"
	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
	"github.com/chipforge/probekit/uart"
)

// Transport hands out host-attached pins and SPI ports.
type Transport struct {
	mu     sync.Mutex
	logger golog.Logger
	pins   map[string]gpio.Pin
	spis   map[string]spi.Target
}

var _ transport.Transport = (*Transport)(nil)

// New initializes the host drivers and returns the transport.
func New(logger golog.Logger) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing host drivers")
	}
	return &Transport{
		logger: logger,
		pins:   map[string]gpio.Pin{},
		spis:   map[string]spi.Target{},
	}, nil
}

// Capabilities lists the interfaces host pins provide.
func (t *Transport) Capabilities() (*transport.Capabilities, error) {
	return transport.NewCapabilities(transport.CapabilityGPIO | transport.CapabilitySPI), nil
}

// GPIOPin looks the pin up in the host's registry on first request.
func (t *Transport) GPIOPin(ctx context.Context, name string) (gpio.Pin, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pin, ok := t.pins[name]; ok {
		return pin, nil
	}
	phys := gpioreg.ByName(name)
	if phys == nil {
		return nil, &gpio.InvalidPinNameError{Name: name}
	}
	pin := &hostPin{pin: phys}
	t.pins[name] = pin
	return pin, nil
}

// SPI opens the named host SPI port on first request. The instance is a
// spidev path or periph port name.
func (t *Transport) SPI(ctx context.Context, instance string) (spi.Target, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if target, ok := t.spis[instance]; ok {
		return target, nil
	}
	port, err := spireg.Open(instance)
	if err != nil {
		return nil, &transport.InvalidInstanceError{Interface: transport.InterfaceSPI, Instance: instance}
	}
	target := newHostSPI(port)
	t.spis[instance] = target
	return target, nil
}

// UART is not provided; host serial ports are opened directly.
func (t *Transport) UART(ctx context.Context, instance string) (uart.Port, error) {
	return nil, &transport.UnsupportedOperationError{Op: "UART on host pins"}
}

// Dispatch understands no commands.
func (t *Transport) Dispatch(ctx context.Context, cmd transport.Command) (any, error) {
	return nil, &transport.UnsupportedOperationError{Op: "dispatch command"}
}
