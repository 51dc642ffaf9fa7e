//go:build !debug

package source

func debugLog(format string, args ...any) {}
