//go:build !debug

package server

func debugLog(format string, args ...any) {}
