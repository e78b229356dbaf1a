package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/challenge"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
)

const defaultComplexitySettings = `{
  "generator": "int_array",
  "min": -1000,
  "max": 1000
}
`

// Init scaffolds a challenge for one language: the solution template,
// testcases.json with the language's function registered, challenge.yaml
// and complexity.json. Existing files are kept; the solution file is
// replaced only with Force.
func (e *Engine) Init(ctx context.Context, req InitRequest) (InitResult, error) {
	platform := req.Platform
	if platform == "" {
		platform = e.cfg.DefaultPlatform
	}
	layout, err := challenge.NewLayout(e.cfg.ProblemsDir, platform, req.Challenge)
	if err != nil {
		return InitResult{}, err
	}
	lp, err := e.resolveLanguage(platform, req.Language, challenge.Settings{})
	if err != nil {
		return InitResult{}, err
	}
	function := req.Function
	if function == "" {
		function = challenge.DefaultFunction
	}

	workdir := layout.Workdir(lp.Name())
	unlock, err := e.locks.Lock(ctx, workdir)
	if err != nil {
		return InitResult{}, err
	}
	defer unlock()

	if err := os.MkdirAll(workdir, sandbox.DirPermission); err != nil {
		return InitResult{}, fmt.Errorf("failed to create challenge directory: %w", err)
	}
	result := InitResult{Dir: layout.Dir()}

	source, err := lp.Template(function)
	if err != nil {
		return InitResult{}, err
	}
	solution := filepath.Join(workdir, lp.SolutionFile())
	if exists(solution) && !req.Force {
		result.Skipped = append(result.Skipped, solution)
	} else {
		if err := os.WriteFile(solution, []byte(source), sandbox.FilePermission); err != nil {
			return InitResult{}, fmt.Errorf("failed to write solution template: %w", err)
		}
		result.Created = append(result.Created, solution)
	}

	if err := e.initTestcases(layout, lp.Name(), function, &result); err != nil {
		return InitResult{}, err
	}

	if exists(layout.SettingsPath()) {
		result.Skipped = append(result.Skipped, layout.SettingsPath())
	} else {
		settings := challenge.Settings{Language: lp.Name(), FunctionName: function}
		if err := settings.Save(layout.SettingsPath()); err != nil {
			return InitResult{}, err
		}
		result.Created = append(result.Created, layout.SettingsPath())
	}

	if exists(layout.ComplexityPath()) {
		result.Skipped = append(result.Skipped, layout.ComplexityPath())
	} else {
		if err := os.WriteFile(layout.ComplexityPath(), []byte(defaultComplexitySettings), sandbox.FilePermission); err != nil {
			return InitResult{}, fmt.Errorf("failed to write complexity settings: %w", err)
		}
		result.Created = append(result.Created, layout.ComplexityPath())
	}

	e.logger.Info("initialised challenge",
		zap.String("dir", result.Dir),
		zap.String("language", lp.Name()),
		zap.String("function", function))
	return result, nil
}

// initTestcases creates testcases.json, or registers the function in an
// existing one while keeping its cases.
func (e *Engine) initTestcases(layout challenge.Layout, language, function string, result *InitResult) error {
	path := layout.TestcasesPath()

	var suite challenge.Suite
	created := !exists(path)
	if !created {
		loaded, err := challenge.LoadSuite(path)
		if err != nil {
			if errors.Is(err, errkind.ErrConfig) {
				return fmt.Errorf("existing %s is invalid, fix or remove it: %w", path, err)
			}
			return err
		}
		suite = loaded
	}
	if suite.Implementations == nil {
		suite.Implementations = map[string]challenge.Implementation{}
	}
	if impl, ok := suite.Implementations[language]; ok && impl.Function == function {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	suite.Implementations[language] = challenge.Implementation{Function: function}

	data, err := challenge.MarshalSuite(suite.Cases, suite.Implementations)
	if err != nil {
		return fmt.Errorf("failed to encode testcases: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), sandbox.FilePermission); err != nil {
		return fmt.Errorf("failed to write testcases: %w", err)
	}
	if created {
		result.Created = append(result.Created, path)
	} else {
		result.Updated = append(result.Updated, path)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
