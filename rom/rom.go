// Package rom describes the ROM-version detection collaborator used during
// FPGA bring-up to decide whether a target already runs the desired image.
package rom

import (
	"context"

	"github.com/chipforge/probekit/uart"
)

// Kind identifies a family of boot ROM images by the signature they print on
// the console after reset.
type Kind int

// Known ROM families.
const (
	KindTestRom Kind = iota
	KindRom
)

func (k Kind) String() string {
	switch k {
	case KindTestRom:
		return "TestRom"
	case KindRom:
		return "Rom"
	default:
		return "Unknown"
	}
}

// A Detector matches console output against a known image signature. A true
// result means the correct image is already running and programming can be
// skipped.
type Detector interface {
	Detect(ctx context.Context, console uart.Port) (bool, error)
}

// DetectorFactory builds a Detector for the given ROM kind and bitstream.
// The factory is an external collaborator; transports receive one through
// their configuration.
type DetectorFactory func(kind Kind, bitstream []byte) (Detector, error)
