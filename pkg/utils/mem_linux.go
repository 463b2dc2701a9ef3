//go:build linux

package utils

import "golang.org/x/sys/unix"

// AvailableMemory reports free plus buffer memory in bytes
func AvailableMemory() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fallbackAvailableMemory
	}
	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	available := (int64(info.Freeram) + int64(info.Bufferram)) * unit
	if available <= 0 {
		return fallbackAvailableMemory
	}
	return available
}
