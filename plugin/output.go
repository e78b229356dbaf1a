package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Markers printed by the language drivers on stdout.
const (
	ResultMarker  = "__CHALLENGE_RESULT__"
	ElapsedMarker = "__CHALLENGE_ELAPSED_NS__"
)

// ErrNoResult is returned by ParseOutput when the driver printed no result line.
var ErrNoResult = errors.New("solution reported no result")

// Output is the decoded stdout of a driver run.
type Output struct {
	Result json.RawMessage
	// Extra is whatever the user's code printed itself.
	Extra string
	// FunctionTime is the time spent inside the user function, as measured
	// by the driver. Zero when the driver did not report it.
	FunctionTime time.Duration
}

// ParseOutput extracts the result and timing lines from stdout.
func ParseOutput(stdout string) (Output, error) {
	var (
		out   Output
		found bool
		extra []string
	)

	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(trimmed, ResultMarker):
			payload := strings.TrimSpace(strings.TrimPrefix(trimmed, ResultMarker))
			if !json.Valid([]byte(payload)) {
				return Output{}, fmt.Errorf("solution reported malformed result %q", payload)
			}
			out.Result = json.RawMessage(payload)
			found = true
		case strings.HasPrefix(trimmed, ElapsedMarker):
			ns, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(trimmed, ElapsedMarker)), 10, 64)
			if err == nil {
				out.FunctionTime = time.Duration(ns)
			}
		default:
			extra = append(extra, line)
		}
	}

	out.Extra = strings.TrimRight(strings.Join(extra, "\n"), "\n")
	if !found {
		return out, ErrNoResult
	}
	return out, nil
}
