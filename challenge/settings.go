package challenge

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/isdmx/challengebox/errkind"
)

// DefaultFunction is used when neither challenge.yaml nor the testcases
// file names the function under test.
const DefaultFunction = "solve"

// Settings is the per-challenge challenge.yaml.
type Settings struct {
	Language     string `yaml:"language,omitempty"`
	FunctionName string `yaml:"functionName,omitempty"`
}

// LoadSettings reads challenge.yaml. A missing file yields zero Settings.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("failed to read challenge settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, errkind.Configf("%s: %v", path, err)
	}
	return s, nil
}

// Save writes the settings as YAML.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode challenge settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write challenge settings: %w", err)
	}
	return nil
}

// FunctionFor picks the function name for language: challenge.yaml first,
// then the testcases file, then DefaultFunction.
func FunctionFor(s Settings, suite Suite, language string) string {
	if s.FunctionName != "" {
		return s.FunctionName
	}
	if impl, ok := suite.Implementations[language]; ok && impl.Function != "" {
		return impl.Function
	}
	return DefaultFunction
}
