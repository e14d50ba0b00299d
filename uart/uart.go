// Package uart defines the console port contract used by transports, plus a
// serial-port-backed implementation and host port enumeration.
package uart

import "context"

// A Port represents one UART exposed by a debug probe.
type Port interface {
	// Baudrate returns the configured line rate.
	Baudrate() (int, error)

	// SetBaudrate reconfigures the line rate.
	SetBaudrate(baud int) error

	// Read fills buf with however many bytes are available, blocking until
	// at least one arrives.
	Read(ctx context.Context, buf []byte) (int, error)

	// Write transmits all of buf.
	Write(ctx context.Context, buf []byte) error
}

// PortInfo describes one host serial port, as reported by an Enumerator.
type PortInfo struct {
	// Name is the host path of the port, e.g. /dev/ttyACM0.
	Name string
	// USBSerialNumber is the serial number of the USB device backing the
	// port, or empty for non-USB ports.
	USBSerialNumber string
}

// An Enumerator lists the host's serial ports. Transports use it to locate
// the ports belonging to their probe by USB serial number.
type Enumerator interface {
	Ports() ([]PortInfo, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func() ([]PortInfo, error)

// Ports calls f.
func (f EnumeratorFunc) Ports() ([]PortInfo, error) { return f() }
