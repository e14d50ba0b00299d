//go:build linux

package uart

import (
	"os"
	"path/filepath"
	"strings"
)

// HostEnumerator lists serial ports via sysfs, resolving the USB serial
// number of each port from the owning USB device node.
type HostEnumerator struct{}

// Ports walks /sys/class/tty and keeps entries backed by a real device.
func (HostEnumerator) Ports() ([]PortInfo, error) {
	entries, err := os.ReadDir("/sys/class/tty")
	if err != nil {
		return nil, err
	}
	var infos []PortInfo
	for _, entry := range entries {
		devDir := filepath.Join("/sys/class/tty", entry.Name(), "device")
		if _, err := os.Stat(devDir); err != nil {
			// Virtual console, no hardware behind it.
			continue
		}
		info := PortInfo{Name: filepath.Join("/dev", entry.Name())}
		// For USB CDC ports the serial number lives two levels up from the
		// interface directory.
		for _, rel := range []string{"../serial", "../../serial"} {
			raw, err := os.ReadFile(filepath.Join(devDir, rel))
			if err == nil {
				info.USBSerialNumber = strings.TrimSpace(string(raw))
				break
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}
