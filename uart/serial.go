package uart

import (
	"context"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// defaultBaudrate matches the console rate of the supported probes.
const defaultBaudrate = 115200

// SerialPort is a Port backed by a host serial device.
type SerialPort struct {
	mu   sync.Mutex
	name string
	baud int
	dev  io.ReadWriteCloser
}

// OpenSerialPort opens the named host serial port at the default console
// baudrate.
func OpenSerialPort(name string) (*SerialPort, error) {
	p := &SerialPort{name: name, baud: defaultBaudrate}
	if err := p.reopen(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SerialPort) reopen() error {
	if p.dev != nil {
		if err := p.dev.Close(); err != nil {
			return err
		}
		p.dev = nil
	}
	dev, err := serial.Open(serial.OpenOptions{
		PortName:        p.name,
		BaudRate:        uint(p.baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return errors.Wrapf(err, "opening serial port %s", p.name)
	}
	p.dev = dev
	return nil
}

// Baudrate returns the configured line rate.
func (p *SerialPort) Baudrate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud, nil
}

// SetBaudrate reopens the port at the given line rate.
func (p *SerialPort) SetBaudrate(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if baud <= 0 {
		return errors.Errorf("invalid baudrate %d", baud)
	}
	if baud == p.baud {
		return nil
	}
	p.baud = baud
	return p.reopen()
}

// Read blocks until at least one byte is available.
func (p *SerialPort) Read(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.dev.Read(buf)
}

// Write transmits all of buf.
func (p *SerialPort) Write(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for len(buf) > 0 {
		n, err := p.dev.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Close releases the underlying device.
func (p *SerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	err := p.dev.Close()
	p.dev = nil
	return err
}
