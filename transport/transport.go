// Package transport defines the top-level contract a debug probe
// implementation must satisfy: a capability registry and factory that lazily
// produces and caches GPIO, SPI, and UART handles, plus a generic dispatch
// for probe-specific commands.
package transport

import (
	"context"
	"strings"

	"github.com/chipforge/probekit/gpio"
	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/uart"
)

// Capability is a bit in the set of interfaces a transport provides.
type Capability uint32

// Capabilities a transport may advertise.
const (
	CapabilityGPIO Capability = 1 << iota
	CapabilitySPI
	CapabilityUART
	CapabilityGPIOMonitoring
	CapabilityFPGAProgram
)

func (c Capability) String() string {
	var names []string
	for _, e := range []struct {
		bit  Capability
		name string
	}{
		{CapabilityGPIO, "GPIO"},
		{CapabilitySPI, "SPI"},
		{CapabilityUART, "UART"},
		{CapabilityGPIOMonitoring, "GPIOMonitoring"},
		{CapabilityFPGAProgram, "FPGAProgram"},
	} {
		if c&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// Capabilities is the set of interfaces one transport provides. Tooling
// checks its requirements up front with Request rather than discovering
// missing interfaces mid-run.
type Capabilities struct {
	have Capability
}

// NewCapabilities builds a capability set from the given bits.
func NewCapabilities(have Capability) *Capabilities {
	return &Capabilities{have: have}
}

// Has reports whether every bit of needed is present.
func (c *Capabilities) Has(needed Capability) bool {
	return c.have&needed == needed
}

// Request returns an error naming the missing bits if the set does not cover
// needed.
func (c *Capabilities) Request(needed Capability) error {
	if missing := needed &^ c.have; missing != 0 {
		return &UnsupportedOperationError{Op: "capability " + missing.String()}
	}
	return nil
}

// A Transport represents one physical debug probe attached to the host. It
// hands out cached handles to the probe's interfaces: requesting the same
// instance twice returns the same handle, created lazily on first request.
//
// A transport has a single logical owner, and all I/O is synchronous; see
// the package documentation for the concurrency model.
type Transport interface {
	// Capabilities returns the interface set this probe provides.
	Capabilities() (*Capabilities, error)

	// UART returns the probe's UART with the given instance identifier.
	UART(ctx context.Context, instance string) (uart.Port, error)

	// GPIOPin returns the named pin. The name may be an alias resolved by
	// the transport.
	GPIOPin(ctx context.Context, name string) (gpio.Pin, error)

	// SPI returns the probe's SPI target with the given instance identifier.
	SPI(ctx context.Context, instance string) (spi.Target, error)

	// Dispatch executes a probe-specific command, returning an optional
	// serializable result. Commands a transport does not recognize are an
	// UnsupportedOperationError.
	Dispatch(ctx context.Context, cmd Command) (any, error)
}
