package plugin

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
)

// Interpreted runs the source directly with the language interpreter.
type Interpreted struct {
	*base
}

// NewInterpreted creates an interpreted plugin.
func NewInterpreted(spec Spec, exec sandbox.Executor, opts ...Option) (*Interpreted, error) {
	b, err := newBase(spec, exec, opts...)
	if err != nil {
		return nil, err
	}
	return &Interpreted{base: b}, nil
}

// Build writes the driver next to the solution. Nothing is compiled.
func (p *Interpreted) Build(_ context.Context, target Target) (BuildOutcome, error) {
	if err := p.checkSolution(target); err != nil {
		return BuildOutcome{}, err
	}
	if err := p.writeDriver(target); err != nil {
		return BuildOutcome{}, err
	}
	return BuildOutcome{Skipped: true}, nil
}

// Run invokes the interpreter on the driver with args.
func (p *Interpreted) Run(ctx context.Context, target Target, args []json.RawMessage, opts RunOptions) (sandbox.ExecutionResult, error) {
	if err := p.requireFile(target, p.spec.DriverFile); err != nil {
		return sandbox.ExecutionResult{}, err
	}
	return p.run(ctx, target, args, opts)
}

// Compiled builds a binary from the solution and driver, then runs it.
type Compiled struct {
	*base
}

// NewCompiled creates a compiled plugin. spec.BuildCommand and spec.Binary
// are required.
func NewCompiled(spec Spec, exec sandbox.Executor, opts ...Option) (*Compiled, error) {
	if spec.BuildCommand == "" || spec.Binary == "" {
		return nil, errkind.Configf("compiled plugin %s needs a build command and a binary", spec.Name)
	}
	b, err := newBase(spec, exec, opts...)
	if err != nil {
		return nil, err
	}
	return &Compiled{base: b}, nil
}

// Build compiles the solution inside the sandbox. A non-zero exit or a
// timeout is returned as *BuildError.
func (p *Compiled) Build(ctx context.Context, target Target) (BuildOutcome, error) {
	if err := p.checkSolution(target); err != nil {
		return BuildOutcome{}, err
	}
	if err := p.writeDriver(target); err != nil {
		return BuildOutcome{}, err
	}
	driverPath := p.hostPath(target, p.spec.DriverFile)
	defer func() {
		if rmErr := p.fs.Remove(driverPath); rmErr != nil {
			p.logger.Warn("failed to remove driver", zap.String("path", driverPath), zap.Error(rmErr))
		}
	}()

	command, err := p.command(p.buildCmd, p.data(target, ""))
	if err != nil {
		return BuildOutcome{}, err
	}

	p.logger.Debug("building solution", zap.String("workdir", target.Workdir), zap.Strings("command", command))
	result, err := p.exec.Execute(ctx, p.request(target, command, p.buildTimeout, 0))
	if err != nil {
		return BuildOutcome{}, err
	}
	if result.TimedOut || result.ExitCode != 0 {
		return BuildOutcome{Result: result}, &BuildError{Language: p.spec.Name, Result: result}
	}
	return BuildOutcome{Result: result}, nil
}

// Run executes the compiled binary with args.
func (p *Compiled) Run(ctx context.Context, target Target, args []json.RawMessage, opts RunOptions) (sandbox.ExecutionResult, error) {
	if err := p.requireFile(target, p.spec.Binary); err != nil {
		return sandbox.ExecutionResult{}, err
	}
	return p.run(ctx, target, args, opts)
}
