package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. CHALLENGEBOX_SANDBOX_BACKEND.
const EnvPrefix = "CHALLENGEBOX"

// Config represents the application configuration
type Config struct {
	ProblemsDir     string              `mapstructure:"problems_dir"`
	DefaultPlatform string              `mapstructure:"default_platform"`
	Platforms       map[string]Platform `mapstructure:"platforms"`
	Server          ServerConfig        `mapstructure:"server"`
	Sandbox         SandboxConfig       `mapstructure:"sandbox"`
	Logging         LoggingConfig       `mapstructure:"logging"`
	Profile         ProfileConfig       `mapstructure:"profile"`
	Analyze         AnalyzeConfig       `mapstructure:"analyze"`
	History         HistoryConfig       `mapstructure:"history"`
	Languages       map[string]Language `mapstructure:"languages"`
}

// Platform holds per-platform defaults
type Platform struct {
	Language string `mapstructure:"language"`
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
	BuildTimeoutSec    int    `mapstructure:"build_timeout_sec"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	PidsLimit          int    `mapstructure:"pids_limit"`
	Workers            int    `mapstructure:"workers"`
	NetworkEnabled     bool   `mapstructure:"network_enabled"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
	TimeBinary         string `mapstructure:"time_binary"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// ProfileConfig holds profiler defaults
type ProfileConfig struct {
	Iterations int `mapstructure:"iterations"`
	Workers    int `mapstructure:"workers"`
}

// AnalyzeConfig holds complexity analysis defaults. Strategy is one of
// "doubling", "linear" or "explicit".
type AnalyzeConfig struct {
	Strategy string `mapstructure:"strategy"`
	Start    int    `mapstructure:"start"`
	Step     int    `mapstructure:"step"`
	Count    int    `mapstructure:"count"`
	Sizes    []int  `mapstructure:"sizes"`
	Repeats  int    `mapstructure:"repeats"`
}

// HistoryConfig holds run history configuration
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Language holds language-specific sandbox settings
type Language struct {
	Image string            `mapstructure:"image"`
	Env   map[string]string `mapstructure:"env"`
}

// New loads the configuration from the default search paths.
func New() (*Config, error) {
	return Load("")
}

// Load loads and validates the application configuration. An empty path
// searches ./challengebox.yaml and ./config/challengebox.yaml; a missing
// file there is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("challengebox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if file := v.ConfigFileUsed(); isYAML(file) {
		if err := restoreEnvKeys(file, &config); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// restoreEnvKeys replaces the language env maps with the keys as written in
// the file. Viper lowercases map keys, and environment variable names are
// case sensitive.
func restoreEnvKeys(file string, config *Config) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var raw struct {
		Languages map[string]struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, lang := range raw.Languages {
		if lang.Env == nil {
			continue
		}
		key := strings.ToLower(name)
		settings := config.Languages[key]
		settings.Env = lang.Env
		if config.Languages == nil {
			config.Languages = make(map[string]Language)
		}
		config.Languages[key] = settings
	}
	return nil
}

func isYAML(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("problems_dir", "./problems")
	v.SetDefault("default_platform", "leetcode")
	v.SetDefault("platforms.leetcode.language", "python")

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_path", "/metrics")

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.timeout_sec", 10)
	v.SetDefault("sandbox.build_timeout_sec", 300)
	v.SetDefault("sandbox.memory_mb", 512)
	v.SetDefault("sandbox.pids_limit", 256)
	v.SetDefault("sandbox.workers", 4)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.enable_local_backend", false)
	v.SetDefault("sandbox.time_binary", "/usr/bin/time")

	v.SetDefault("logging.mode", "console")
	v.SetDefault("logging.level", "warn")

	v.SetDefault("profile.iterations", 100)
	v.SetDefault("profile.workers", 1)

	v.SetDefault("analyze.strategy", "doubling")
	v.SetDefault("analyze.start", 1000)
	v.SetDefault("analyze.step", 1000)
	v.SetDefault("analyze.count", 6)
	v.SetDefault("analyze.repeats", 3)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "./.challengebox/history.db")

	v.SetDefault("languages.python.image", "challengebox/python:3.12")
	v.SetDefault("languages.javascript.image", "challengebox/node:20")
	v.SetDefault("languages.go.image", "challengebox/go:1.23")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.ProblemsDir == "" {
		return fmt.Errorf("problems_dir must not be empty")
	}

	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.BuildTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.build_timeout_sec must be positive, got: %d", c.Sandbox.BuildTimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.Workers <= 0 {
		return fmt.Errorf("sandbox.workers must be positive, got: %d", c.Sandbox.Workers)
	}

	supportedBackends := map[string]bool{
		"docker":     true,
		"podman":     true,
		"docker-api": true,
		"local":      c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Profile.Iterations <= 0 {
		return fmt.Errorf("profile.iterations must be positive, got: %d", c.Profile.Iterations)
	}

	switch c.Analyze.Strategy {
	case "doubling", "linear":
		if c.Analyze.Start <= 0 || c.Analyze.Count < 2 {
			return fmt.Errorf("analyze.start must be positive and analyze.count at least 2, got: %d, %d", c.Analyze.Start, c.Analyze.Count)
		}
	case "explicit":
		if len(c.Analyze.Sizes) < 2 {
			return fmt.Errorf("analyze.sizes needs at least 2 entries for the explicit strategy")
		}
	default:
		return fmt.Errorf("invalid analyze.strategy: %s, must be 'doubling', 'linear' or 'explicit'", c.Analyze.Strategy)
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path must be set when history is enabled")
	}

	for name, p := range c.Platforms {
		if p.Language == "" {
			return fmt.Errorf("platforms.%s.language must not be empty", name)
		}
	}

	return nil
}

// GetTimeout returns the per-run timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetBuildTimeout returns the build timeout as a duration
func (c *Config) GetBuildTimeout() time.Duration {
	return time.Duration(c.Sandbox.BuildTimeoutSec) * time.Second
}

// Language returns the settings for a language, or the zero value.
func (c *Config) Language(name string) Language {
	return c.Languages[name]
}

// PlatformLanguage returns the default language of a platform.
func (c *Config) PlatformLanguage(platform string) (string, bool) {
	p, ok := c.Platforms[platform]
	if !ok || p.Language == "" {
		return "", false
	}
	return p.Language, true
}

// PlatformNames returns the configured platforms, sorted.
func (c *Config) PlatformNames() []string {
	names := make([]string, 0, len(c.Platforms))
	for name := range c.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
