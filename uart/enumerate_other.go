//go:build !linux

package uart

import "github.com/pkg/errors"

// HostEnumerator lists serial ports on the host.
type HostEnumerator struct{}

// Ports is unimplemented on this OS.
func (HostEnumerator) Ports() ([]PortInfo, error) {
	return nil, errors.New("serial port enumeration not supported on this OS")
}
