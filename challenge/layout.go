package challenge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/isdmx/challengebox/errkind"
)

// Files inside a challenge directory.
const (
	TestcasesFile  = "testcases.json"
	SettingsFile   = "challenge.yaml"
	ComplexityFile = "complexity.json"
)

// Layout locates a challenge on disk:
// <problems_dir>/<platform>/<name>/{testcases.json, challenge.yaml, complexity.json, <language>/}
type Layout struct {
	ProblemsDir string
	Platform    string
	Name        string
}

// NewLayout validates the path components.
func NewLayout(problemsDir, platform, name string) (Layout, error) {
	if problemsDir == "" {
		return Layout{}, errkind.Configf("problems directory is not set")
	}
	if err := checkComponent("platform", platform); err != nil {
		return Layout{}, err
	}
	if err := checkComponent("challenge", name); err != nil {
		return Layout{}, err
	}
	return Layout{ProblemsDir: problemsDir, Platform: platform, Name: name}, nil
}

func checkComponent(what, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return errkind.Configf("%s name is required", what)
	case value == "." || value == ".." || strings.ContainsAny(value, `/\`):
		return errkind.Configf("invalid %s name %q", what, value)
	}
	return nil
}

// Dir is the challenge directory.
func (l Layout) Dir() string {
	return filepath.Join(l.ProblemsDir, l.Platform, l.Name)
}

func (l Layout) TestcasesPath() string  { return filepath.Join(l.Dir(), TestcasesFile) }
func (l Layout) SettingsPath() string   { return filepath.Join(l.Dir(), SettingsFile) }
func (l Layout) ComplexityPath() string { return filepath.Join(l.Dir(), ComplexityFile) }

// Workdir is the per-language directory holding the solution file. It is
// the directory mounted into the sandbox.
func (l Layout) Workdir(language string) string {
	return filepath.Join(l.Dir(), language)
}

// Exists reports an ErrConfig error when the challenge directory is missing.
func (l Layout) Exists() error {
	info, err := os.Stat(l.Dir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errkind.Configf("challenge %s/%s not found in %s", l.Platform, l.Name, l.ProblemsDir)
		}
		return fmt.Errorf("failed to stat challenge: %w", err)
	}
	if !info.IsDir() {
		return errkind.Configf("%s is not a directory", l.Dir())
	}
	return nil
}
