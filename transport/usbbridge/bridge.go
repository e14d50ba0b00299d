// Package usbbridge implements the SPI contract over the packet-based bulk
// protocol of a USB debug bridge. The bridge exposes several SPI sub-buses
// behind one bulk interface; a vendor control transfer selects which sub-bus
// subsequent bulk traffic is forwarded to.
package usbbridge

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/edaniels/golog"

	"github.com/chipforge/probekit/transport"
)

// Vendor control request codes for enabling the SPI bridge toward a
// particular sub-bus. Distinct codes exist for the generic form and for
// enabling toward each chip role.
const (
	ReqEnable   uint8 = 0
	ReqEnableAP uint8 = 2
	ReqEnableEC uint8 = 3
)

// Device is the raw USB collaborator: enumeration, open, and transfer
// primitives live outside this package.
type Device interface {
	// WriteControl issues a vendor control transfer directed at an
	// interface, with the given request code, value, and index fields.
	WriteControl(ctx context.Context, request uint8, value, index uint16, data []byte) error

	// ClaimInterface claims the numbered interface for exclusive use.
	ClaimInterface(number uint8) error

	// WriteBulk sends one packet on the given OUT endpoint.
	WriteBulk(ctx context.Context, endpoint uint8, data []byte) error

	// ReadBulk receives one packet from the given IN endpoint.
	ReadBulk(ctx context.Context, endpoint uint8, buf []byte) (int, error)
}

// BulkInterface identifies the bridge's SPI bulk interface and its endpoint
// pair.
type BulkInterface struct {
	Number      uint8
	InEndpoint  uint8
	OutEndpoint uint8
}

// A Commander runs one textual command on the bridge's command console and
// returns its output. Used for the configuration queries that have no bulk
// packet equivalent.
type Commander interface {
	RunCommand(ctx context.Context, cmd string) (string, error)
}

// Bridge holds the state shared by every target derived from one physical
// bridge device: the device handle, the command console, and the currently
// selected sub-bus.
type Bridge struct {
	mu       sync.Mutex
	device   Device
	console  Commander
	logger   golog.Logger
	selected int16 // selected sub-bus index, -1 before the first selection
}

// NewBridge wraps an opened USB device handle. The console may be nil, in
// which case speed queries report an unsupported operation.
func NewBridge(device Device, console Commander, logger golog.Logger) *Bridge {
	return &Bridge{device: device, console: console, logger: logger, selected: -1}
}

// forceSelectBus unconditionally issues the enable control transfer,
// recording idx as the selected sub-bus. Used while opening a target.
func (b *Bridge) forceSelectBus(ctx context.Context, enableCmd, idx, ifaceNumber uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = int16(idx)
	return b.device.WriteControl(ctx, enableCmd, uint16(idx), uint16(ifaceNumber), nil)
}

// selectBus issues the enable control transfer only when the cached
// selection differs from idx, avoiding redundant control transfers when
// consecutive operations target the same sub-bus.
func (b *Bridge) selectBus(ctx context.Context, enableCmd, idx, ifaceNumber uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected == int16(idx) {
		return nil
	}
	b.selected = int16(idx)
	return b.device.WriteControl(ctx, enableCmd, uint16(idx), uint16(ifaceNumber), nil)
}

// cmdOneLineMatch runs cmd on the console and returns the submatches of the
// first output line matching re.
func (b *Bridge) cmdOneLineMatch(ctx context.Context, cmd string, re *regexp.Regexp) ([]string, error) {
	if b.console == nil {
		return nil, &transport.UnsupportedOperationError{Op: "console commands"}
	}
	out, err := b.console.RunCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		if m := re.FindStringSubmatch(line); m != nil {
			return m, nil
		}
	}
	return nil, &transport.CommunicationError{Reason: "unexpected response to command " + cmd}
}

// cmdNoOutput runs cmd on the console, treating any output as a failure.
func (b *Bridge) cmdNoOutput(ctx context.Context, cmd string) error {
	if b.console == nil {
		return &transport.UnsupportedOperationError{Op: "console commands"}
	}
	out, err := b.console.RunCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "" {
		return &transport.CommunicationError{Reason: "unexpected response to command " + cmd}
	}
	return nil
}
