package fake

import (
	"context"
	"math"
	"sync"

	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
)

// SPITarget is an in-memory SPI target. Writes are recorded, reads are
// served from a queue of canned responses.
type SPITarget struct {
	mu       sync.Mutex
	mode     spi.Mode
	speed    int
	maxSizes spi.MaxSizes
	cs       spi.CSCounter

	// Writes accumulates the data of every write and full-duplex step.
	Writes [][]byte
	// ReadQueue supplies the data returned by read steps, in order.
	ReadQueue [][]byte
	// CSTransitions counts physical chip-select line changes.
	CSTransitions int
}

var _ spi.Target = (*SPITarget)(nil)

// NewSPITarget returns a fake target with generous transfer limits.
func NewSPITarget() *SPITarget {
	return &SPITarget{
		speed:    1_000_000,
		maxSizes: spi.MaxSizes{Read: 1024, Write: 1024},
	}
}

// TransferMode returns the stored mode.
func (s *SPITarget) TransferMode(ctx context.Context) (spi.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, nil
}

// SetTransferMode stores the mode.
func (s *SPITarget) SetTransferMode(ctx context.Context, mode spi.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	return nil
}

// BitsPerWord returns 8.
func (s *SPITarget) BitsPerWord(ctx context.Context) (int, error) {
	return 8, nil
}

// SetBitsPerWord accepts only eight-bit words.
func (s *SPITarget) SetBitsPerWord(ctx context.Context, bits int) error {
	if bits == 8 {
		return nil
	}
	return &spi.InvalidWordSizeError{Bits: bits}
}

// MaxSpeed returns the stored speed.
func (s *SPITarget) MaxSpeed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed, nil
}

// SetMaxSpeed stores the speed.
func (s *SPITarget) SetMaxSpeed(ctx context.Context, frequency int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = frequency
	return nil
}

// MaxTransferCount is unbounded.
func (s *SPITarget) MaxTransferCount(ctx context.Context) (int, error) {
	return math.MaxInt, nil
}

// MaxTransferSizes returns the fake's limits.
func (s *SPITarget) MaxTransferSizes(ctx context.Context) (spi.MaxSizes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSizes, nil
}

func (s *SPITarget) fillRead(into []byte) {
	if len(s.ReadQueue) == 0 {
		return
	}
	copy(into, s.ReadQueue[0])
	s.ReadQueue = s.ReadQueue[1:]
}

// RunTransaction records writes and serves reads.
func (s *SPITarget) RunTransaction(ctx context.Context, transfers ...spi.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range transfers {
		switch x := tr.(type) {
		case spi.Write:
			if len(x.Data) > s.maxSizes.Write {
				return &spi.InvalidDataLengthError{Length: len(x.Data)}
			}
			s.Writes = append(s.Writes, append([]byte(nil), x.Data...))
		case spi.Read:
			if len(x.Into) > s.maxSizes.Read {
				return &spi.InvalidDataLengthError{Length: len(x.Into)}
			}
			s.fillRead(x.Into)
		case spi.Both:
			if len(x.Data) != len(x.Into) {
				return &spi.MismatchedDataLengthError{WriteLength: len(x.Data), ReadLength: len(x.Into)}
			}
			s.Writes = append(s.Writes, append([]byte(nil), x.Data...))
			s.fillRead(x.Into)
		default:
			return &transport.UnsupportedOperationError{Op: "SPI transfer type"}
		}
	}
	return nil
}

func (s *SPITarget) setCS(ctx context.Context, assert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CSTransitions++
	return nil
}

// AssertCS reference counts assertions like the hardware targets.
func (s *SPITarget) AssertCS(ctx context.Context) (*spi.ChipSelect, error) {
	if err := s.cs.Assert(ctx, s.setCS); err != nil {
		return nil, err
	}
	return spi.NewChipSelect(func(ctx context.Context) error {
		return s.cs.Deassert(ctx, s.setCS)
	}), nil
}
