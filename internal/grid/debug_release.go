//go:build !debug

package grid

// debugLog is a no-op in release builds
func debugLog(format string, args ...interface{}) {}
