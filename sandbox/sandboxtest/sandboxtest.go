// Package sandboxtest provides an in-process sandbox.Executor for tests.
//
// The Executor hands every request to a Handler instead of starting a
// container, enforces the request timeout the way the real backends do, and
// keeps count of environments that were started and torn down.
package sandboxtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/isdmx/challengebox/sandbox"
)

// Handler produces the result of one invocation. It must return promptly
// once ctx is done.
type Handler func(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecutionResult, error)

// Executor is a sandbox.Executor backed by a Handler.
type Executor struct {
	handler Handler

	mu       sync.Mutex
	live     map[string]struct{}
	started  int
	requests []sandbox.ExecuteRequest
}

// New returns an Executor running h.
func New(h Handler) *Executor {
	return &Executor{
		handler: h,
		live:    map[string]struct{}{},
	}
}

// Execute implements sandbox.Executor.
func (e *Executor) Execute(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
	name := sandbox.ContainerName()

	e.mu.Lock()
	e.live[name] = struct{}{}
	e.started++
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.live, name)
		e.mu.Unlock()
	}()

	timeout := req.Limits.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.handler(runCtx, req)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return sandbox.ExecutionResult{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return sandbox.ExecutionResult{
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: -1,
			Duration: elapsed,
			TimedOut: true,
		}, nil
	}
	if err != nil {
		return sandbox.ExecutionResult{}, err
	}
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	return result, nil
}

// Live returns the number of environments currently running.
func (e *Executor) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Started returns the number of environments started so far.
func (e *Executor) Started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Requests returns a copy of every request received, in arrival order.
func (e *Executor) Requests() []sandbox.ExecuteRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sandbox.ExecuteRequest(nil), e.requests...)
}

// Reap implements sandbox.Reaper. Live environments are never leaked, so
// there is nothing to remove.
func (e *Executor) Reap(context.Context) (int, error) {
	return 0, nil
}

// Static returns a Handler that always yields res.
func Static(res sandbox.ExecutionResult) Handler {
	return func(context.Context, sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
		return res, nil
	}
}

// Hang returns a Handler that blocks until the invocation times out.
func Hang() Handler {
	return func(ctx context.Context, _ sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
		<-ctx.Done()
		return sandbox.ExecutionResult{}, ctx.Err()
	}
}
