package plugin

import (
	_ "embed"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/sandbox"
)

var (
	//go:embed drivers/python.py.tmpl
	pythonDriver string
	//go:embed drivers/javascript.js.tmpl
	javascriptDriver string
	//go:embed drivers/go.go.tmpl
	goDriver string
)

// PythonSpec describes the python plugin.
func PythonSpec() Spec {
	return Spec{
		Name:         "python",
		Aliases:      []string{"py", "python3"},
		Image:        "challengebox/python:3.12",
		SolutionFile: "solution.py",
		DriverFile:   StateDir + "/driver.py",
		Driver:       pythonDriver,
		SolutionTemplate: `def {{.Function}}(*args):
    """Write your solution here."""
    raise NotImplementedError
`,
		RunCommand: "python3 {{.Driver}} {{.Input}} {{.Function}}",
		Env: map[string]string{
			"PYTHONDONTWRITEBYTECODE": "1",
			"PYTHONUNBUFFERED":        "1",
		},
	}
}

// JavaScriptSpec describes the javascript plugin.
func JavaScriptSpec() Spec {
	return Spec{
		Name:         "javascript",
		Aliases:      []string{"js", "node"},
		Image:        "challengebox/node:20",
		SolutionFile: "solution.js",
		DriverFile:   StateDir + "/driver.js",
		Driver:       javascriptDriver,
		SolutionTemplate: `function {{.Function}}(...args) {
  throw new Error("not implemented");
}

module.exports = { {{.Function}} };
`,
		// --stack-size is not accepted in NODE_OPTIONS
		RunCommand: "node --stack-size=65500 {{.Driver}} {{.Input}} {{.Function}}",
	}
}

// GoSpec describes the go plugin. The driver must sit next to solution.go
// because go build only accepts files from one directory.
func GoSpec() Spec {
	return Spec{
		Name:         "go",
		Aliases:      []string{"golang"},
		Image:        "challengebox/go:1.23",
		SolutionFile: "solution.go",
		DriverFile:   "challenge_driver.go",
		Driver:       goDriver,
		SolutionTemplate: `package main

func {{.Function}}(nums []int) int {
	return 0
}
`,
		BuildCommand: "go build -o {{.Binary}} {{.Driver}} {{.Solution}}",
		RunCommand:   "{{.Binary}} {{.Input}}",
		Binary:       "./" + StateDir + "/solution.bin",
		Env: map[string]string{
			"GOCACHE":     "/tmp/gocache",
			"GOPATH":      "/tmp/gopath",
			"HOME":        "/tmp",
			"CGO_ENABLED": "0",
			"GOTOOLCHAIN": "local",
		},
	}
}

// Builtin returns the closed set of supported language plugins, configured
// from cfg.
func Builtin(exec sandbox.Executor, cfg *config.Config, logger *zap.Logger) ([]LanguagePlugin, error) {
	options := func(name string) []Option {
		lang := cfg.Language(name)
		return []Option{
			WithLogger(logger),
			WithLimits(cfg.GetBuildTimeout(), cfg.GetTimeout(), cfg.Sandbox.MemoryMB),
			WithImage(lang.Image),
			WithEnv(lang.Env),
		}
	}

	python, err := NewInterpreted(PythonSpec(), exec, options("python")...)
	if err != nil {
		return nil, err
	}
	javascript, err := NewInterpreted(JavaScriptSpec(), exec, options("javascript")...)
	if err != nil {
		return nil, err
	}
	golang, err := NewCompiled(GoSpec(), exec, options("go")...)
	if err != nil {
		return nil, err
	}
	return []LanguagePlugin{python, javascript, golang}, nil
}

// NewBuiltinRegistry builds the registry of every builtin plugin.
func NewBuiltinRegistry(exec sandbox.Executor, cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	plugins, err := Builtin(exec, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewRegistry(plugins...)
}
