package transport

import (
	"errors"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/chipforge/probekit/rom"
)

func TestCapabilitiesHasAndRequest(t *testing.T) {
	caps := NewCapabilities(CapabilityGPIO | CapabilitySPI)

	test.That(t, caps.Has(CapabilityGPIO), test.ShouldBeTrue)
	test.That(t, caps.Has(CapabilityGPIO|CapabilitySPI), test.ShouldBeTrue)
	test.That(t, caps.Has(CapabilityGPIO|CapabilityUART), test.ShouldBeFalse)

	test.That(t, caps.Request(CapabilitySPI), test.ShouldBeNil)

	err := caps.Request(CapabilityUART | CapabilityFPGAProgram)
	var unsupported *UnsupportedOperationError
	test.That(t, errors.As(err, &unsupported), test.ShouldBeTrue)
	// Only the missing bits are named.
	test.That(t, err.Error(), test.ShouldContainSubstring, "UART|FPGAProgram")
	test.That(t, err.Error(), test.ShouldNotContainSubstring, "GPIO")
}

func TestCapabilityString(t *testing.T) {
	test.That(t, (CapabilityGPIO | CapabilityGPIOMonitoring).String(),
		test.ShouldEqual, "GPIO|GPIOMonitoring")
	test.That(t, Capability(0).String(), test.ShouldEqual, "None")
}

func TestFpgaProgramSkipRequested(t *testing.T) {
	cmd := &FpgaProgram{Bitstream: append(append([]byte(nil), SkipMarker...), 1, 2, 3)}
	test.That(t, cmd.SkipRequested(), test.ShouldBeTrue)

	kind := rom.KindTestRom
	cmd = &FpgaProgram{
		Bitstream:     []byte{1, 2, 3},
		RomKind:       &kind,
		RomResetPulse: 100 * time.Millisecond,
		RomTimeout:    2 * time.Second,
	}
	test.That(t, cmd.SkipRequested(), test.ShouldBeFalse)

	// The marker only counts as a prefix.
	cmd = &FpgaProgram{Bitstream: append([]byte{0}, SkipMarker...)}
	test.That(t, cmd.SkipRequested(), test.ShouldBeFalse)
}
