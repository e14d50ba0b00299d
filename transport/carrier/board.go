// Package carrier implements the transport contract for an FPGA carrier
// board reached through a vendor USB control protocol. The board exposes
// GPIO pins by name, a single SPI bridge, and console UARTs enumerated from
// the host's serial ports.
package carrier

import (
	"context"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/chipforge/probekit/gpio"
	"github.com/chipforge/probekit/rom"
	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
	"github.com/chipforge/probekit/uart"
)

// Board nets needed for reset and bootstrap, plus the SPI bridge pins.
const (
	pinReset     = "USB_A18"
	pinBootstrap = "USB_A16"
	pinJTAG      = "USB_A19"
	pinSPIClk    = "USB_SPI_SCK"
	pinSPICOPI   = "USB_SPI_COPI"
	pinSPICIPO   = "USB_SPI_CIPO"
	pinSPICS     = "USB_SPI_CS"
)

// pinAliases maps user-facing pin names onto board nets.
var pinAliases = map[string]string{
	"SRST":      pinReset,
	"BOOTSTRAP": pinBootstrap,
	"JTAG_EN":   pinJTAG,
}

// Backend is the vendor USB control protocol collaborator; device
// enumeration and the raw control transfers live outside this package.
type Backend interface {
	// SerialNumber returns the USB serial number of the opened device.
	SerialNumber() string

	// PinSetDirection configures the named pin as output (true) or input.
	PinSetDirection(ctx context.Context, name string, output bool) error

	// PinSetOutput configures the named pin as an output driving the given
	// level.
	PinSetOutput(ctx context.Context, name string, high bool) error

	// PinSetState drives the named pin to the given level.
	PinSetState(ctx context.Context, name string, high bool) error

	// PinGetState samples the named pin.
	PinGetState(ctx context.Context, name string) (bool, error)

	// SPISetCS asserts or deasserts the SPI bridge's chip select line.
	SPISetCS(ctx context.Context, assert bool) error

	// SPISetSpeed configures the SPI bridge clock in Hz.
	SPISetSpeed(ctx context.Context, hz int) error

	// SPITransfer clocks one exchange through the SPI bridge. A nil read
	// buffer is a write-only exchange, a nil write buffer read-only, and
	// both non-nil a full-duplex exchange of equal length.
	SPITransfer(ctx context.Context, w, r []byte) error

	// SPI1Enable enables or disables the secondary SPI bridge that shares
	// pins with the FPGA programming interface.
	SPI1Enable(ctx context.Context, enable bool) error

	// FPGAProgram writes a bitstream to the device over its programming
	// interface.
	FPGAProgram(ctx context.Context, bitstream []byte) error
}

// A Config describes everything about a carrier board that is not the USB
// device itself.
type Config struct {
	// UARTOverrides, when non-empty, maps logical UART instance numbers
	// directly to fixed host port names instead of enumerating.
	UARTOverrides []string
	// Enumerator lists host serial ports; defaults to uart.HostEnumerator.
	Enumerator uart.Enumerator
	// OpenPort opens a host serial port; defaults to uart.OpenSerialPort.
	OpenPort func(name string) (uart.Port, error)
	// NewRomDetector builds the console-signature detector used to skip
	// redundant FPGA programming. Required only for dispatches that specify
	// a ROM kind.
	NewRomDetector rom.DetectorFactory
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	for i, name := range c.UARTOverrides {
		if name == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "uart_overrides."+strconv.Itoa(i))
		}
	}
	return nil
}

// Board is a carrier-board transport. It owns one physical device handle
// shared by all derived handles, and hands out each pin, UART, and SPI
// instance at most once.
type Board struct {
	mu      sync.Mutex
	backend Backend
	cfg     Config
	logger  golog.Logger

	pins      map[string]gpio.Pin
	uarts     map[uint32]uart.Port
	spiTarget spi.Target
}

var _ transport.Transport = (*Board)(nil)

// NewBoard wraps an opened backend and drives the board's reset, JTAG, and
// bootstrap pins to a known output state.
func NewBoard(ctx context.Context, backend Backend, cfg Config, logger golog.Logger) (*Board, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if cfg.Enumerator == nil {
		cfg.Enumerator = uart.HostEnumerator{}
	}
	if cfg.OpenPort == nil {
		cfg.OpenPort = func(name string) (uart.Port, error) {
			return uart.OpenSerialPort(name)
		}
	}
	b := &Board{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		pins:    map[string]gpio.Pin{},
		uarts:   map[uint32]uart.Port{},
	}
	for _, pin := range []string{pinReset, pinJTAG, pinBootstrap} {
		if err := backend.PinSetOutput(ctx, pin, true); err != nil {
			return nil, errors.Wrapf(err, "initializing direction of pin %s", pin)
		}
	}
	return b, nil
}

// Capabilities lists the interfaces this board provides.
func (b *Board) Capabilities() (*transport.Capabilities, error) {
	return transport.NewCapabilities(
		transport.CapabilityGPIO | transport.CapabilitySPI | transport.CapabilityUART | transport.CapabilityFPGAProgram,
	), nil
}

// resolvePinName applies the alias table.
func resolvePinName(name string) string {
	if resolved, ok := pinAliases[name]; ok {
		return resolved
	}
	return name
}

// GPIOPin returns the named pin, creating it on first request.
func (b *Board) GPIOPin(ctx context.Context, name string) (gpio.Pin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	resolved := resolvePinName(name)
	if pin, ok := b.pins[resolved]; ok {
		return pin, nil
	}
	pin := &boardPin{backend: b.backend, name: resolved}
	b.pins[resolved] = pin
	return pin, nil
}

// UART returns the UART with the given instance number, opening it on first
// request.
func (b *Board) UART(ctx context.Context, instance string) (uart.Port, error) {
	n, err := strconv.ParseUint(instance, 10, 32)
	if err != nil {
		return nil, &transport.InvalidInstanceError{Interface: transport.InterfaceUART, Instance: instance}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if port, ok := b.uarts[uint32(n)]; ok {
		return port, nil
	}
	port, err := b.openUART(uint32(n))
	if err != nil {
		return nil, err
	}
	b.uarts[uint32(n)] = port
	return port, nil
}

func (b *Board) openUART(instance uint32) (uart.Port, error) {
	if len(b.cfg.UARTOverrides) > 0 {
		if int(instance) >= len(b.cfg.UARTOverrides) {
			return nil, &transport.InvalidInstanceError{
				Interface: transport.InterfaceUART,
				Instance:  strconv.FormatUint(uint64(instance), 10),
			}
		}
		return b.cfg.OpenPort(b.cfg.UARTOverrides[instance])
	}

	ports, err := b.cfg.Enumerator.Ports()
	if err != nil {
		return nil, errors.Wrap(err, "enumerating serial ports")
	}
	serialNumber := b.backend.SerialNumber()
	matching := ports[:0]
	for _, port := range ports {
		if port.USBSerialNumber == serialNumber {
			matching = append(matching, port)
		}
	}
	// The board has its last port connected as logical UART 0. Reverse the
	// sort order so the last port becomes instance 0.
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].Name > matching[j].Name
	})
	if int(instance) >= len(matching) {
		return nil, &transport.InvalidInstanceError{
			Interface: transport.InterfaceUART,
			Instance:  strconv.FormatUint(uint64(instance), 10),
		}
	}
	return b.cfg.OpenPort(matching[instance].Name)
}

// SPI returns the board's single SPI target; "0" is the only instance.
func (b *Board) SPI(ctx context.Context, instance string) (spi.Target, error) {
	if instance != "0" {
		return nil, &transport.InvalidInstanceError{Interface: transport.InterfaceSPI, Instance: instance}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spiTarget == nil {
		b.spiTarget = newBoardSPI(b.backend)
	}
	return b.spiTarget, nil
}

// Dispatch executes board-specific commands; FpgaProgram is the one this
// board understands.
func (b *Board) Dispatch(ctx context.Context, cmd transport.Command) (any, error) {
	switch c := cmd.(type) {
	case *transport.FpgaProgram:
		return nil, b.programFPGA(ctx, c)
	default:
		return nil, &transport.UnsupportedOperationError{Op: "dispatch command"}
	}
}

func (b *Board) programFPGA(ctx context.Context, cmd *transport.FpgaProgram) error {
	if cmd.SkipRequested() {
		b.logger.Info("skip loading the placeholder bitstream")
		return nil
	}
	if cmd.RomKind != nil {
		skip, err := b.detectRunningRom(ctx, cmd)
		if err != nil {
			return err
		}
		if skip {
			b.logger.Info("already running the correct bitstream; skip loading")
			return nil
		}
	}

	// The secondary SPI bridge shares pins with the programming interface.
	if err := b.backend.SPI1Enable(ctx, false); err != nil {
		return err
	}
	if err := b.backend.PinSetState(ctx, pinJTAG, true); err != nil {
		return err
	}
	return b.backend.FPGAProgram(ctx, cmd.Bitstream)
}

// Close releases every cached UART port. Pin and SPI handles hold no host
// resources of their own.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, port := range b.uarts {
		if closer, ok := port.(io.Closer); ok {
			err = multierr.Combine(err, closer.Close())
		}
	}
	b.uarts = map[uint32]uart.Port{}
	return err
}

// detectRunningRom pulses reset and watches the console UART for the ROM's
// version banner. A match means the desired image is already running.
func (b *Board) detectRunningRom(ctx context.Context, cmd *transport.FpgaProgram) (bool, error) {
	if b.cfg.NewRomDetector == nil {
		return false, &transport.UnsupportedOperationError{Op: "ROM detection"}
	}
	detector, err := b.cfg.NewRomDetector(*cmd.RomKind, cmd.Bitstream)
	if err != nil {
		return false, err
	}
	console, err := b.UART(ctx, "0")
	if err != nil {
		return false, err
	}
	resetPin, err := b.GPIOPin(ctx, pinReset)
	if err != nil {
		return false, err
	}

	// Reset is active low: assert, hold for the pulse width, then release so
	// the ROM prints its banner.
	if err := resetPin.Write(ctx, false); err != nil {
		return false, err
	}
	time.Sleep(cmd.RomResetPulse)
	if err := resetPin.Write(ctx, true); err != nil {
		return false, err
	}

	detectCtx, cancel := context.WithTimeout(ctx, cmd.RomTimeout)
	defer cancel()
	return detector.Detect(detectCtx, console)
}
