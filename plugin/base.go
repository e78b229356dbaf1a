package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"text/template"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
)

// StateDir is the directory, relative to the workdir, holding drivers,
// per-run input files and build artifacts.
const StateDir = ".challenge"

// Spec parameterises a plugin variant. Command templates are rendered with
// text/template over CommandData and split into argv with shell quoting
// rules. Paths are relative to the workdir so they resolve the same way
// inside the sandbox and on the local backend.
type Spec struct {
	Name         string
	Aliases      []string
	Image        string
	SolutionFile string
	// DriverFile is where the rendered Driver template is written.
	DriverFile       string
	Driver           string
	SolutionTemplate string
	BuildCommand     string
	RunCommand       string
	// Binary is the build output, compiled variants only.
	Binary string
	Env    map[string]string
}

// CommandData is the data command templates are rendered with.
type CommandData struct {
	Driver   string
	Solution string
	Binary   string
	Input    string
	Function string
}

// Option configures a plugin.
type Option func(*base)

// WithFileSystem sets the FileSystem used to write drivers and inputs.
func WithFileSystem(fs sandbox.FileSystem) Option {
	return func(b *base) {
		b.fs = fs
	}
}

// WithLogger sets the plugin logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// WithLimits sets the default build and run limits. Non-positive values
// keep the defaults.
func WithLimits(buildTimeout, runTimeout time.Duration, memoryMB int) Option {
	return func(b *base) {
		if buildTimeout > 0 {
			b.buildTimeout = buildTimeout
		}
		if runTimeout > 0 {
			b.runTimeout = runTimeout
		}
		if memoryMB > 0 {
			b.memoryMB = memoryMB
		}
	}
}

// WithImage overrides the sandbox image.
func WithImage(image string) Option {
	return func(b *base) {
		if image != "" {
			b.spec.Image = image
		}
	}
}

// WithEnv adds environment variables to every command.
func WithEnv(env map[string]string) Option {
	return func(b *base) {
		merged := make(map[string]string, len(b.spec.Env)+len(env))
		for k, v := range b.spec.Env {
			merged[k] = v
		}
		for k, v := range env {
			merged[k] = v
		}
		b.spec.Env = merged
	}
}

const (
	defaultBuildTimeout = 5 * time.Minute
	defaultRunTimeout   = 10 * time.Second
)

type base struct {
	spec   Spec
	exec   sandbox.Executor
	fs     sandbox.FileSystem
	logger *zap.Logger

	buildTimeout time.Duration
	runTimeout   time.Duration
	memoryMB     int

	driver   *template.Template
	solution *template.Template
	buildCmd *template.Template
	runCmd   *template.Template
}

func newBase(spec Spec, exec sandbox.Executor, opts ...Option) (*base, error) {
	if spec.Name == "" {
		return nil, errkind.Configf("plugin without name")
	}
	if exec == nil {
		return nil, errkind.Configf("plugin %s without executor", spec.Name)
	}

	b := &base{
		spec:         spec,
		exec:         exec,
		fs:           sandbox.RealFileSystem{},
		logger:       zap.NewNop(),
		buildTimeout: defaultBuildTimeout,
		runTimeout:   defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("language", spec.Name))

	var err error
	if b.driver, err = parseTemplate(spec.Name+"-driver", spec.Driver); err != nil {
		return nil, err
	}
	if b.solution, err = parseTemplate(spec.Name+"-solution", spec.SolutionTemplate); err != nil {
		return nil, err
	}
	if b.runCmd, err = parseTemplate(spec.Name+"-run", spec.RunCommand); err != nil {
		return nil, err
	}
	if spec.BuildCommand != "" {
		if b.buildCmd, err = parseTemplate(spec.Name+"-build", spec.BuildCommand); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errkind.Configf("template %s: %v", name, err)
	}
	return tpl, nil
}

func (b *base) Name() string         { return b.spec.Name }
func (b *base) Aliases() []string    { return append([]string(nil), b.spec.Aliases...) }
func (b *base) Image() string        { return b.spec.Image }
func (b *base) SolutionFile() string { return b.spec.SolutionFile }

// Template renders the starter solution for functionName.
func (b *base) Template(functionName string) (string, error) {
	return render(b.solution, CommandData{Function: functionName})
}

func (b *base) data(target Target, input string) CommandData {
	return CommandData{
		Driver:   b.spec.DriverFile,
		Solution: b.spec.SolutionFile,
		Binary:   b.spec.Binary,
		Input:    input,
		Function: target.FunctionName,
	}
}

func (b *base) command(tpl *template.Template, data CommandData) ([]string, error) {
	line, err := render(tpl, data)
	if err != nil {
		return nil, err
	}
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, errkind.Configf("%s command %q: %v", b.spec.Name, line, err)
	}
	if len(argv) == 0 {
		return nil, errkind.Configf("%s command template renders empty", b.spec.Name)
	}
	return argv, nil
}

func render(tpl *template.Template, data CommandData) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", errkind.Configf("render %s: %v", tpl.Name(), err)
	}
	return buf.String(), nil
}

func (b *base) hostPath(target Target, rel string) string {
	return filepath.Join(target.Workdir, filepath.FromSlash(rel))
}

func (b *base) checkSolution(target Target) error {
	if target.FunctionName == "" {
		return errkind.Configf("%s: function name is required", b.spec.Name)
	}
	exists, err := b.fs.FileExists(b.hostPath(target, b.spec.SolutionFile))
	if err != nil {
		return fmt.Errorf("failed to stat solution: %w", err)
	}
	if !exists {
		return errkind.Configf("solution file %s not found in %s", b.spec.SolutionFile, target.Workdir)
	}
	return nil
}

func (b *base) requireFile(target Target, rel string) error {
	exists, err := b.fs.FileExists(b.hostPath(target, rel))
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if !exists {
		return errkind.Configf("%s: %s missing, build the solution first", b.spec.Name, rel)
	}
	return nil
}

func (b *base) writeDriver(target Target) error {
	source, err := render(b.driver, b.data(target, ""))
	if err != nil {
		return err
	}
	driverPath := b.hostPath(target, b.spec.DriverFile)
	if err := b.fs.MkdirAll(filepath.Dir(driverPath), sandbox.DirPermission); err != nil {
		return fmt.Errorf("failed to create driver dir: %w", err)
	}
	if err := b.fs.WriteFile(driverPath, []byte(source), sandbox.FilePermission); err != nil {
		return fmt.Errorf("failed to write driver: %w", err)
	}
	return nil
}

func (b *base) request(target Target, command []string, timeout time.Duration, memoryMB int) sandbox.ExecuteRequest {
	if memoryMB <= 0 {
		memoryMB = b.memoryMB
	}
	return sandbox.ExecuteRequest{
		Image:   b.spec.Image,
		Workdir: target.Workdir,
		Command: command,
		Env:     b.spec.Env,
		Limits:  sandbox.Limits{Timeout: timeout, MemoryMB: memoryMB},
	}
}

// run writes args to a fresh input file, executes the run command and
// removes the input file again.
func (b *base) run(ctx context.Context, target Target, args []json.RawMessage, opts RunOptions) (sandbox.ExecutionResult, error) {
	if args == nil {
		args = []json.RawMessage{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return sandbox.ExecutionResult{}, errkind.Configf("encode arguments: %v", err)
	}

	input := path.Join(StateDir, "input-"+uuid.NewString()+".json")
	inputPath := b.hostPath(target, input)
	if err := b.fs.MkdirAll(filepath.Dir(inputPath), sandbox.DirPermission); err != nil {
		return sandbox.ExecutionResult{}, fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := b.fs.WriteFile(inputPath, payload, sandbox.FilePermission); err != nil {
		return sandbox.ExecutionResult{}, fmt.Errorf("failed to write input: %w", err)
	}
	defer func() {
		if rmErr := b.fs.Remove(inputPath); rmErr != nil {
			b.logger.Warn("failed to remove input file", zap.String("path", inputPath), zap.Error(rmErr))
		}
	}()

	command, err := b.command(b.runCmd, b.data(target, input))
	if err != nil {
		return sandbox.ExecutionResult{}, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.runTimeout
	}
	return b.exec.Execute(ctx, b.request(target, command, timeout, opts.MemoryMB))
}
