package hostpins

import (
	"context"
	"fmt"
	"math"
	"sync"

	periphconn "periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	periphspi "periph.io/x/conn/v3/spi"

	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
)

const defaultSpeedHz = 1_000_000

// hostSPI adapts one periph.io SPI port to the probe target contract. The
// connection is (re)established lazily so mode and speed changes before the
// first transaction are cheap.
type hostSPI struct {
	mu    sync.Mutex
	port  periphspi.PortCloser
	conn  periphspi.Conn
	mode  spi.Mode
	speed int
}

var _ spi.Target = (*hostSPI)(nil)

func newHostSPI(port periphspi.PortCloser) *hostSPI {
	return &hostSPI{port: port, speed: defaultSpeedHz}
}

func toPeriphMode(mode spi.Mode) periphspi.Mode {
	switch mode {
	case spi.Mode1:
		return periphspi.Mode1
	case spi.Mode2:
		return periphspi.Mode2
	case spi.Mode3:
		return periphspi.Mode3
	default:
		return periphspi.Mode0
	}
}

// connect must be called with the mutex held.
func (s *hostSPI) connect() (periphspi.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.port.Connect(physic.Frequency(s.speed)*physic.Hertz, toPeriphMode(s.mode), 8)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

func (s *hostSPI) TransferMode(ctx context.Context) (spi.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, nil
}

func (s *hostSPI) SetTransferMode(ctx context.Context, mode spi.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.conn = nil
	return nil
}

func (s *hostSPI) BitsPerWord(ctx context.Context) (int, error) {
	return 8, nil
}

func (s *hostSPI) SetBitsPerWord(ctx context.Context, bits int) error {
	if bits == 8 {
		return nil
	}
	return &spi.InvalidWordSizeError{Bits: bits}
}

func (s *hostSPI) MaxSpeed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed, nil
}

func (s *hostSPI) SetMaxSpeed(ctx context.Context, frequency int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.LimitSpeed(physic.Frequency(frequency) * physic.Hertz); err != nil {
		return err
	}
	s.speed = frequency
	s.conn = nil
	return nil
}

func (s *hostSPI) MaxTransferCount(ctx context.Context) (int, error) {
	return math.MaxInt, nil
}

func (s *hostSPI) MaxTransferSizes(ctx context.Context) (spi.MaxSizes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := math.MaxInt
	if lim, ok := s.port.(periphconn.Limits); ok {
		if m := lim.MaxTxSize(); m > 0 {
			limit = m
		}
	}
	return spi.MaxSizes{Read: limit, Write: limit}, nil
}

// RunTransaction clocks each step through the port; the kernel driver
// handles chip select per exchange.
func (s *hostSPI) RunTransaction(ctx context.Context, transfers ...spi.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.connect()
	if err != nil {
		return err
	}
	for _, tr := range transfers {
		switch x := tr.(type) {
		case spi.Write:
			if err := conn.Tx(x.Data, nil); err != nil {
				return err
			}
		case spi.Read:
			if err := conn.Tx(nil, x.Into); err != nil {
				return err
			}
		case spi.Both:
			if len(x.Data) != len(x.Into) {
				return &spi.MismatchedDataLengthError{WriteLength: len(x.Data), ReadLength: len(x.Into)}
			}
			if err := conn.Tx(x.Data, x.Into); err != nil {
				return err
			}
		default:
			return &transport.UnsupportedOperationError{Op: fmt.Sprintf("SPI transfer type %T", tr)}
		}
	}
	return nil
}

// AssertCS is not available: the kernel driver owns the chip select line
// and toggles it around each exchange.
func (s *hostSPI) AssertCS(ctx context.Context) (*spi.ChipSelect, error) {
	return nil, &transport.UnsupportedOperationError{Op: "scoped chip select on host SPI"}
}
