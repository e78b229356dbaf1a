// Package errkind defines the error taxonomy shared by every challengebox
// component and the mapping from error kinds to process exit codes.
//
// Components wrap one of the sentinel errors with fmt.Errorf("...: %w")
// and callers classify with errors.Is or Of.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by challengebox wraps at most one of these.
var (
	ErrConfig             = errors.New("config error")
	ErrUnknownLanguage    = errors.New("unknown language")
	ErrBuild              = errors.New("build failure")
	ErrRuntime            = errors.New("runtime error")
	ErrTimeout            = errors.New("timeout")
	ErrMismatch           = errors.New("comparison mismatch")
	ErrSandboxUnavailable = errors.New("sandbox unavailable")
)

// Kind classifies an error.
type Kind int

const (
	KindNone Kind = iota
	KindConfig
	KindUnknownLanguage
	KindBuild
	KindRuntime
	KindTimeout
	KindMismatch
	KindSandboxUnavailable
	KindInternal
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitTestFailure        = 1
	ExitBuildFailure       = 2
	ExitConfig             = 3
	ExitSandboxUnavailable = 4
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrConfig, KindConfig},
	{ErrUnknownLanguage, KindUnknownLanguage},
	{ErrBuild, KindBuild},
	{ErrRuntime, KindRuntime},
	{ErrTimeout, KindTimeout},
	{ErrMismatch, KindMismatch},
	{ErrSandboxUnavailable, KindSandboxUnavailable},
}

// Of returns the kind of err. Errors that wrap none of the sentinels are KindInternal.
func Of(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfig:
		return "config"
	case KindUnknownLanguage:
		return "unknown_language"
	case KindBuild:
		return "build"
	case KindRuntime:
		return "runtime"
	case KindTimeout:
		return "timeout"
	case KindMismatch:
		return "mismatch"
	case KindSandboxUnavailable:
		return "sandbox_unavailable"
	default:
		return "internal"
	}
}

// Fatal reports whether errors of this kind abort the enclosing command
// instead of being recorded as a per-case outcome.
func (k Kind) Fatal() bool {
	switch k {
	case KindConfig, KindUnknownLanguage, KindSandboxUnavailable, KindInternal:
		return true
	default:
		return false
	}
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch Of(err) {
	case KindNone:
		return ExitOK
	case KindBuild:
		return ExitBuildFailure
	case KindConfig, KindUnknownLanguage:
		return ExitConfig
	case KindSandboxUnavailable, KindInternal:
		return ExitSandboxUnavailable
	default:
		return ExitTestFailure
	}
}

// Configf returns an error wrapping ErrConfig.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Unavailablef returns an error wrapping ErrSandboxUnavailable.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSandboxUnavailable, fmt.Sprintf(format, args...))
}
