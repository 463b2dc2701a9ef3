//go:build !linux

package utils

// AvailableMemory returns a fixed estimate because no portable query exists
func AvailableMemory() int64 {
	return fallbackAvailableMemory
}
