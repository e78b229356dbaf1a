package sandbox

import (
	"strconv"
	"strings"
	"time"
)

// RusageMarker prefixes the line GNU time appends to stderr.
const RusageMarker = "__CHALLENGE_RUSAGE__"

// rusageFormat makes GNU time print elapsed wall seconds and max RSS in KB.
const rusageFormat = RusageMarker + " %e %M"

type rusage struct {
	elapsed time.Duration
	peakKB  int64
	ok      bool
}

// wrapCommand prefixes command with the measurement utility. An empty
// timeBinary leaves the command unchanged.
func wrapCommand(timeBinary string, command []string) []string {
	if timeBinary == "" {
		return command
	}
	wrapped := make([]string, 0, len(command)+3)
	wrapped = append(wrapped, timeBinary, "-f", rusageFormat)
	return append(wrapped, command...)
}

// extractRusage removes the measurement lines from stderr and parses them.
// GNU time also reports non-zero exits and signals on stderr; those lines
// are dropped as well.
func extractRusage(stderr string) (string, rusage) {
	var usage rusage
	lines := strings.Split(stderr, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, RusageMarker):
			usage = parseRusageLine(trimmed)
		case strings.HasPrefix(trimmed, "Command exited with non-zero status"),
			strings.HasPrefix(trimmed, "Command terminated by signal"):
		default:
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), usage
}

func parseRusageLine(line string) rusage {
	fields := strings.Fields(strings.TrimPrefix(line, RusageMarker))
	if len(fields) != 2 {
		return rusage{}
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return rusage{}
	}
	peak, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return rusage{}
	}
	return rusage{
		elapsed: time.Duration(seconds * float64(time.Second)),
		peakKB:  peak,
		ok:      true,
	}
}

// apply fills the measured fields of res, falling back to the host wall
// clock when the utility reported nothing or a zero elapsed time.
func (u rusage) apply(res *ExecutionResult, wall time.Duration) {
	res.Duration = wall
	if !u.ok {
		return
	}
	res.Measured = true
	res.PeakMemoryKB = u.peakKB
	if u.elapsed > 0 {
		res.Duration = u.elapsed
	}
}
