//go:build !debug

package main

func debugLog(format string, args ...any) {}
