//go:build debug

package dblib

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	debugFile *os.File
	debugMu   sync.Mutex
)

func init() {
	var err error
	debugFile, err = os.OpenFile(filepath.Join(os.TempDir(), "tedgrid.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open debug log file: %v\n", err)
		debugFile = os.Stderr
	}
}

// debugLog appends SQL traces to the shared debug log when built with -tags debug
func debugLog(format string, args ...any) {
	debugMu.Lock()
	defer debugMu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(debugFile, "[%s] dblib: "+format, append([]any{timestamp}, args...)...)
}
