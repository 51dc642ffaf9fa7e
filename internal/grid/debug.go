//go:build debug

package grid

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
		debugFile = os.Stderr
	}
}

// debugLog writes debug messages to the tedgrid log file when built with -tags debug
func debugLog(format string, args ...interface{}) {
	debugMu.Lock()
	defer debugMu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(debugFile, "[%s] grid: "+format, append([]interface{}{timestamp}, args...)...)
}
