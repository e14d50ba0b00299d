// Package fake implements an in-memory debug probe. It backs the package
// tests and lets tooling dry-run provisioning flows without hardware.
package fake

import (
	"bytes"
	"context"
	"sync"

	"github.com/edaniels/golog"

	"github.com/chipforge/probekit/gpio"
	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
	"github.com/chipforge/probekit/uart"
)

// A Config describes which optional behaviors the fake probe advertises.
type Config struct {
	// SupportedModes lists the pin modes pins accept; defaults to Input and
	// PushPull.
	SupportedModes []gpio.PinMode
	// SupportedPulls lists the pull modes pins accept; defaults to all.
	SupportedPulls []gpio.PullMode
	// Analog enables the analog operations on pins, with a 0..3.3V range.
	Analog bool
}

// Transport is an in-memory probe.
type Transport struct {
	mu      sync.Mutex
	cfg     Config
	logger  golog.Logger
	pins    map[string]*Pin
	uarts   map[string]*UART
	spi     *SPITarget
	monitor *Monitor

	// Dispatched records every command passed to Dispatch.
	Dispatched []transport.Command
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns a fake probe.
func NewTransport(cfg Config, logger golog.Logger) *Transport {
	if len(cfg.SupportedModes) == 0 {
		cfg.SupportedModes = []gpio.PinMode{gpio.ModeInput, gpio.ModePushPull}
	}
	if len(cfg.SupportedPulls) == 0 {
		cfg.SupportedPulls = []gpio.PullMode{gpio.PullNone, gpio.PullUp, gpio.PullDown}
	}
	t := &Transport{
		cfg:    cfg,
		logger: logger,
		pins:   map[string]*Pin{},
		uarts:  map[string]*UART{},
	}
	t.monitor = newMonitor(t)
	return t
}

// Capabilities lists everything the fake provides.
func (t *Transport) Capabilities() (*transport.Capabilities, error) {
	return transport.NewCapabilities(
		transport.CapabilityGPIO | transport.CapabilitySPI | transport.CapabilityUART | transport.CapabilityGPIOMonitoring,
	), nil
}

// GPIOPin returns the named pin, creating it on first request.
func (t *Transport) GPIOPin(ctx context.Context, name string) (gpio.Pin, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pin, ok := t.pins[name]; ok {
		return pin, nil
	}
	pin := &Pin{transport: t, name: name, mode: gpio.ModeInput}
	t.pins[name] = pin
	return pin, nil
}

// UART returns a loopback port for any instance.
func (t *Transport) UART(ctx context.Context, instance string) (uart.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if port, ok := t.uarts[instance]; ok {
		return port, nil
	}
	port := &UART{baud: 115200}
	t.uarts[instance] = port
	return port, nil
}

// SPI returns the fake's single SPI target; "0" is the only instance.
func (t *Transport) SPI(ctx context.Context, instance string) (spi.Target, error) {
	if instance != "0" {
		return nil, &transport.InvalidInstanceError{Interface: transport.InterfaceSPI, Instance: instance}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.spi == nil {
		t.spi = NewSPITarget()
	}
	return t.spi, nil
}

// Monitor returns the fake's edge monitor.
func (t *Transport) Monitor() *Monitor {
	return t.monitor
}

// Dispatch records the command; the fake understands none of them.
func (t *Transport) Dispatch(ctx context.Context, cmd transport.Command) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Dispatched = append(t.Dispatched, cmd)
	return nil, &transport.UnsupportedOperationError{Op: "dispatch command"}
}

// UART is an in-memory loopback port: writes become readable.
type UART struct {
	mu   sync.Mutex
	baud int
	buf  bytes.Buffer
}

var _ uart.Port = (*UART)(nil)

// Baudrate returns the configured rate.
func (u *UART) Baudrate() (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.baud, nil
}

// SetBaudrate stores the rate.
func (u *UART) SetBaudrate(baud int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.baud = baud
	return nil
}

// Read drains buffered bytes.
func (u *UART) Read(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buf.Read(buf)
}

// Write buffers bytes for later reads.
func (u *UART) Write(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	_, err := u.buf.Write(buf)
	return err
}
