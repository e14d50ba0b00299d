package transport

import "fmt"

// InterfaceType names the kind of interface a transport error refers to.
type InterfaceType int

// Interface kinds.
const (
	InterfaceGPIO InterfaceType = iota
	InterfaceSPI
	InterfaceUART
)

func (t InterfaceType) String() string {
	switch t {
	case InterfaceGPIO:
		return "GPIO"
	case InterfaceSPI:
		return "SPI"
	case InterfaceUART:
		return "UART"
	default:
		return "Unknown"
	}
}

// InvalidInstanceError indicates a request for an interface instance the
// transport does not have.
type InvalidInstanceError struct {
	Interface InterfaceType
	Instance  string
}

func (e *InvalidInstanceError) Error() string {
	return fmt.Sprintf("invalid instance %q of %s interface", e.Instance, e.Interface)
}

// CommunicationError indicates a malformed or unexpected protocol response
// from the probe.
type CommunicationError struct {
	Reason string
}

func (e *CommunicationError) Error() string {
	return "communication error: " + e.Reason
}

// UnsupportedOperationError indicates a capability gap: the transport cannot
// perform the requested operation at all.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Op == "" {
		return "unsupported operation"
	}
	return "unsupported operation: " + e.Op
}
