package transport

import (
	"bytes"
	"time"

	"github.com/chipforge/probekit/rom"
)

// A Command is a probe-specific operation for Transport.Dispatch. The
// variant set is closed: each transport type-switches over the commands it
// understands and rejects the rest.
type Command interface {
	isCommand()
}

// SkipMarker at the start of a bitstream marks it as a placeholder that must
// not be programmed; dispatching such a command is a no-op.
var SkipMarker = []byte("__skip__")

// FpgaProgram asks a carrier-board transport to load a bitstream into its
// FPGA.
type FpgaProgram struct {
	// Bitstream is the image to load.
	Bitstream []byte
	// RomKind, when set, enables ROM detection: the transport resets the
	// chip and watches the console for the ROM's version banner. A match
	// means the right image is already running and programming is skipped.
	RomKind *rom.Kind
	// RomResetPulse is how long to hold reset asserted.
	RomResetPulse time.Duration
	// RomTimeout is how long to wait for the ROM to print its banner.
	RomTimeout time.Duration
}

func (*FpgaProgram) isCommand() {}

// SkipRequested reports whether the bitstream carries the skip marker.
func (f *FpgaProgram) SkipRequested() bool {
	return bytes.HasPrefix(f.Bitstream, SkipMarker)
}
