// Package gpio defines the contract a debug probe's pin implementation must
// satisfy, along with the value types describing pin configuration.
package gpio

import (
	"context"
)

// PinMode is the I/O mode of a pin.
type PinMode int

// Supported pin modes. Not every transport supports every mode; a request for
// an unsupported mode is reported as an error, never silently downgraded.
const (
	ModeInput PinMode = iota
	ModePushPull
	ModeOpenDrain
	ModeAnalogInput
	ModeAnalogOutput
	// ModeAlternate hands the pin to a non-GPIO function (UART, SPI, etc.).
	ModeAlternate
)

func (m PinMode) String() string {
	switch m {
	case ModeInput:
		return "Input"
	case ModePushPull:
		return "PushPull"
	case ModeOpenDrain:
		return "OpenDrain"
	case ModeAnalogInput:
		return "AnalogInput"
	case ModeAnalogOutput:
		return "AnalogOutput"
	case ModeAlternate:
		return "Alternate"
	default:
		return "Unknown"
	}
}

// PullMode is the weak pull resistor state, relevant in Input and OpenDrain
// modes.
type PullMode int

// Supported pull modes.
const (
	PullNone PullMode = iota
	PullUp
	PullDown
)

func (m PullMode) String() string {
	switch m {
	case PullNone:
		return "None"
	case PullUp:
		return "PullUp"
	case PullDown:
		return "PullDown"
	default:
		return "Unknown"
	}
}

// Config describes a composite pin update. Nil fields are left untouched.
type Config struct {
	Mode        *PinMode
	Value       *bool
	Pull        *PullMode
	AnalogValue *float64
}

// A Pin represents an individual pin on a debug probe. Implementations hold
// no client-visible mutable state; every call reaches the physical device.
type Pin interface {
	// Read returns the current level of the pin.
	Read(ctx context.Context) (bool, error)

	// Write drives the pin to the given level.
	Write(ctx context.Context, value bool) error

	// SetMode configures the pin as input, output, open drain, etc.
	SetMode(ctx context.Context, mode PinMode) error

	// SetPullMode configures the weak pull resistors of the pin.
	SetPullMode(ctx context.Context, pull PullMode) error

	// AnalogRead returns the analog value of the pin in volts. AnalogInput
	// mode disables digital circuitry for better results, but this may also
	// work in other modes. Most probes are purely digital and return
	// ErrAnalogUnsupported.
	AnalogRead(ctx context.Context) (float64, error)

	// AnalogWrite drives the pin to the given voltage, in AnalogOutput mode.
	AnalogWrite(ctx context.Context, volts float64) error

	// Set applies any subset of mode, value, pull, and analog value in one
	// call. Backends that can do so atomically should override the sequential
	// default, ApplySequentially.
	Set(ctx context.Context, cfg Config) error

	// InternalPinName returns the pin name as the transport knows it, after
	// any alias mapping from the client-provided name. It is meant for
	// Monitor implementations that need the raw wire-level identifier, not
	// for API clients. The second return is false when no such name exists.
	InternalPinName() (string, bool)
}

// ApplySequentially is the non-atomic default for Pin.Set: it applies mode,
// then pull, then value, then analog value, as independent steps. The fixed
// order makes a mode change take effect before a value write that depends on
// it. If a step fails, steps already applied remain applied.
func ApplySequentially(ctx context.Context, pin Pin, cfg Config) error {
	if cfg.Mode != nil {
		if err := pin.SetMode(ctx, *cfg.Mode); err != nil {
			return err
		}
	}
	if cfg.Pull != nil {
		if err := pin.SetPullMode(ctx, *cfg.Pull); err != nil {
			return err
		}
	}
	if cfg.Value != nil {
		if err := pin.Write(ctx, *cfg.Value); err != nil {
			return err
		}
	}
	if cfg.AnalogValue != nil {
		if err := pin.AnalogWrite(ctx, *cfg.AnalogValue); err != nil {
			return err
		}
	}
	return nil
}

// Unimplemented provides defaults for the optional parts of the Pin
// interface. Embed it in pin implementations for purely digital probes.
type Unimplemented struct{}

// AnalogRead returns ErrAnalogUnsupported.
func (Unimplemented) AnalogRead(ctx context.Context) (float64, error) {
	return 0, ErrAnalogUnsupported
}

// AnalogWrite returns ErrAnalogUnsupported.
func (Unimplemented) AnalogWrite(ctx context.Context, volts float64) error {
	return ErrAnalogUnsupported
}

// InternalPinName reports no wire-level name.
func (Unimplemented) InternalPinName() (string, bool) {
	return "", false
}
