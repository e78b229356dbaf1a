//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package sandbox

import "os"

func peakMemoryKB(*os.ProcessState) (int64, bool) {
	return 0, false
}
