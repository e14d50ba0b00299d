// Package spi defines the contract a debug probe's SPI implementation must
// satisfy, along with the value types describing a transaction.
package spi

import (
	"context"
)

// Mode is the SPI clock polarity/phase mode (0 through 3).
type Mode int

// Standard SPI modes.
const (
	Mode0 Mode = iota
	Mode1
	Mode2
	Mode3
)

// MaxSizes reports the largest read and write a target can handle in a
// single exchange. Transactions with more steps are executed as several
// exchanges, but a single Write or Read step must individually fit.
type MaxSizes struct {
	Read  int
	Write int
}

// A Transfer is one step in a SPI transaction: Write, Read, or Both.
type Transfer interface {
	isTransfer()
}

// Write transmits Data to the target.
type Write struct {
	Data []byte
}

// Read fills Into with bytes from the target.
type Read struct {
	Into []byte
}

// Both transmits Data while simultaneously filling Into. The two buffers
// must have equal length.
type Both struct {
	Data []byte
	Into []byte
}

func (Write) isTransfer() {}
func (Read) isTransfer()  {}
func (Both) isTransfer()  {}

// A Target represents one SPI device attached to a debug probe. A
// transaction is an ordered sequence of transfers; chip select remains
// asserted across the whole sequence.
type Target interface {
	// TransferMode returns the clock polarity/phase mode in use.
	TransferMode(ctx context.Context) (Mode, error)

	// SetTransferMode selects the clock polarity/phase mode.
	SetTransferMode(ctx context.Context, mode Mode) error

	// BitsPerWord returns the word size in bits. Eight is the only word size
	// every target supports.
	BitsPerWord(ctx context.Context) (int, error)

	// SetBitsPerWord sets the word size in bits; word sizes other than eight
	// may be rejected with an InvalidWordSizeError.
	SetBitsPerWord(ctx context.Context, bits int) error

	// MaxSpeed returns the maximum clock speed in Hz.
	MaxSpeed(ctx context.Context) (int, error)

	// SetMaxSpeed caps the clock speed in Hz.
	SetMaxSpeed(ctx context.Context, frequency int) error

	// MaxTransferCount returns the largest number of transfers accepted in
	// one transaction, unbounded unless the protocol imposes a cap.
	MaxTransferCount(ctx context.Context) (int, error)

	// MaxTransferSizes returns the byte limits for a single exchange.
	MaxTransferSizes(ctx context.Context) (MaxSizes, error)

	// RunTransaction executes the transfers in order as one transaction.
	RunTransaction(ctx context.Context, transfers ...Transfer) error

	// AssertCS asserts chip select and returns a guard holding it asserted
	// until released. Assertions nest: the line deasserts only when every
	// guard has been released.
	AssertCS(ctx context.Context) (*ChipSelect, error)
}
