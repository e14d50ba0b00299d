package gpio

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAnalogUnsupported is returned by pins without analog circuitry.
var ErrAnalogUnsupported = errors.New("analog operations not supported on this pin")

// InvalidPinNameError indicates the transport does not know the given pin.
type InvalidPinNameError struct {
	Name string
}

func (e *InvalidPinNameError) Error() string {
	return fmt.Sprintf("invalid pin name %q", e.Name)
}

// InvalidPinNumberError indicates a numeric pin identifier out of range.
type InvalidPinNumberError struct {
	Number int
}

func (e *InvalidPinNumberError) Error() string {
	return fmt.Sprintf("invalid pin number %d", e.Number)
}

// InvalidPinModeError indicates the pin's current mode does not support the
// requested operation, e.g. writing a level to a pin configured as input.
type InvalidPinModeError struct {
	Name string
	Mode PinMode
	Op   string
}

func (e *InvalidPinModeError) Error() string {
	return fmt.Sprintf("pin %s: cannot %s while in %s mode", e.Name, e.Op, e.Mode)
}

// UnsupportedPinModeError indicates the hardware cannot provide the requested
// pin mode (open drain, analog, etc.).
type UnsupportedPinModeError struct {
	Mode PinMode
}

func (e *UnsupportedPinModeError) Error() string {
	return fmt.Sprintf("unsupported pin mode %s requested", e.Mode)
}

// UnsupportedPullModeError indicates the hardware cannot provide the
// requested weak pull configuration.
type UnsupportedPullModeError struct {
	Pull PullMode
}

func (e *UnsupportedPullModeError) Error() string {
	return fmt.Sprintf("unsupported pull mode %s requested", e.Pull)
}

// PinModeConflictError indicates disagreement between the configuration
// requested by the host and the one reported by the target.
type PinModeConflictError struct {
	Name   string
	Host   string
	Target string
}

func (e *PinModeConflictError) Error() string {
	return fmt.Sprintf("conflicting pin configurations for pin %s: host:%s, target:%s", e.Name, e.Host, e.Target)
}

// PinValueConflictError indicates disagreement between the logic value
// requested by the host and the one reported by the target.
type PinValueConflictError struct {
	Name   string
	Host   string
	Target string
}

func (e *PinValueConflictError) Error() string {
	return fmt.Sprintf("conflicting pin logic values for pin %s: host:%s, target:%s", e.Name, e.Host, e.Target)
}

// PinValueUndefinedError indicates the pin has no defined logic value.
type PinValueUndefinedError struct {
	Name string
}

func (e *PinValueUndefinedError) Error() string {
	return fmt.Sprintf("undefined pin logic value for pin %s", e.Name)
}

// UnsupportedVoltageError indicates a requested analog voltage outside the
// range the hardware can produce or measure.
type UnsupportedVoltageError struct {
	Volts float64
}

func (e *UnsupportedVoltageError) Error() string {
	return fmt.Sprintf("unsupported voltage %gV requested", e.Volts)
}
