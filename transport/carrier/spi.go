package carrier

import (
	"context"
	"fmt"
	"math"

	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
)

// The vendor protocol streams SPI data in arbitrarily sized control
// payloads; this cap keeps a single exchange within one underlying USB
// request.
const maxExchangeBytes = 64 * 1024

// boardSPI is the carrier board's single SPI bridge.
type boardSPI struct {
	backend Backend
	cs      spi.CSCounter
}

var _ spi.Target = (*boardSPI)(nil)

func newBoardSPI(backend Backend) *boardSPI {
	return &boardSPI{backend: backend}
}

func (s *boardSPI) TransferMode(ctx context.Context) (spi.Mode, error) {
	return spi.Mode0, nil
}

func (s *boardSPI) SetTransferMode(ctx context.Context, mode spi.Mode) error {
	if mode == spi.Mode0 {
		return nil
	}
	return &transport.UnsupportedOperationError{Op: fmt.Sprintf("SPI transfer mode %d", mode)}
}

func (s *boardSPI) BitsPerWord(ctx context.Context) (int, error) {
	return 8, nil
}

func (s *boardSPI) SetBitsPerWord(ctx context.Context, bits int) error {
	if bits == 8 {
		return nil
	}
	return &spi.InvalidWordSizeError{Bits: bits}
}

func (s *boardSPI) MaxSpeed(ctx context.Context) (int, error) {
	// The bridge clock is write-only through the control protocol; report
	// the highest rate it accepts.
	return 33_000_000, nil
}

func (s *boardSPI) SetMaxSpeed(ctx context.Context, frequency int) error {
	return s.backend.SPISetSpeed(ctx, frequency)
}

func (s *boardSPI) MaxTransferCount(ctx context.Context) (int, error) {
	return math.MaxInt, nil
}

func (s *boardSPI) MaxTransferSizes(ctx context.Context) (spi.MaxSizes, error) {
	return spi.MaxSizes{Read: maxExchangeBytes, Write: maxExchangeBytes}, nil
}

func (s *boardSPI) validate(transfers []spi.Transfer) error {
	for _, tr := range transfers {
		switch x := tr.(type) {
		case spi.Write:
			if len(x.Data) > maxExchangeBytes {
				return &spi.InvalidDataLengthError{Length: len(x.Data)}
			}
		case spi.Read:
			if len(x.Into) > maxExchangeBytes {
				return &spi.InvalidDataLengthError{Length: len(x.Into)}
			}
		case spi.Both:
			if len(x.Data) != len(x.Into) {
				return &spi.MismatchedDataLengthError{WriteLength: len(x.Data), ReadLength: len(x.Into)}
			}
			if len(x.Data) > maxExchangeBytes {
				return &spi.InvalidDataLengthError{Length: len(x.Data)}
			}
		default:
			return &transport.UnsupportedOperationError{Op: fmt.Sprintf("SPI transfer type %T", tr)}
		}
	}
	return nil
}

// RunTransaction holds chip select across the sequence and clocks each step
// through the bridge as its own exchange.
func (s *boardSPI) RunTransaction(ctx context.Context, transfers ...spi.Transfer) error {
	if err := s.validate(transfers); err != nil {
		return err
	}
	if err := s.cs.Assert(ctx, s.backend.SPISetCS); err != nil {
		return err
	}
	for _, tr := range transfers {
		var err error
		switch x := tr.(type) {
		case spi.Write:
			err = s.backend.SPITransfer(ctx, x.Data, nil)
		case spi.Read:
			err = s.backend.SPITransfer(ctx, nil, x.Into)
		case spi.Both:
			err = s.backend.SPITransfer(ctx, x.Data, x.Into)
		}
		if err != nil {
			return err
		}
	}
	return s.cs.Deassert(ctx, s.backend.SPISetCS)
}

func (s *boardSPI) AssertCS(ctx context.Context) (*spi.ChipSelect, error) {
	if err := s.cs.Assert(ctx, s.backend.SPISetCS); err != nil {
		return nil, err
	}
	return spi.NewChipSelect(func(ctx context.Context) error {
		return s.cs.Deassert(ctx, s.backend.SPISetCS)
	}), nil
}
