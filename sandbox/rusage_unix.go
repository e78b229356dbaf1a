//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sandbox

import (
	"os"
	"runtime"
	"syscall"
)

// peakMemoryKB reads the max RSS of a finished process. Darwin reports
// bytes, Linux and the BSDs report kilobytes.
func peakMemoryKB(state *os.ProcessState) (int64, bool) {
	if state == nil {
		return 0, false
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || usage == nil {
		return 0, false
	}
	maxrss := int64(usage.Maxrss)
	if runtime.GOOS == "darwin" {
		maxrss /= 1024
	}
	return maxrss, true
}
