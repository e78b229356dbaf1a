package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox/sandboxtest"
)

func TestRegistry(t *testing.T) {
	registry, err := NewBuiltinRegistry(sandboxtest.New(echoArgs), &config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, []string{"go", "javascript", "python"}, registry.Names())
	})

	t.Run("ResolveNamesAndAliases", func(t *testing.T) {
		cases := map[string]string{
			"python":     "python",
			"py":         "python",
			"PY":         "python",
			"javascript": "javascript",
			"js":         "javascript",
			"node":       "javascript",
			"go":         "go",
			"golang":     "go",
			" Go ":       "go",
		}
		for input, want := range cases {
			p, err := registry.Resolve(input)
			require.NoError(t, err, input)
			assert.Equal(t, want, p.Name(), input)
		}
	})

	t.Run("UnknownLanguage", func(t *testing.T) {
		_, err := registry.Resolve("cobol")
		require.Error(t, err)
		assert.ErrorIs(t, err, errkind.ErrUnknownLanguage)
		assert.Contains(t, err.Error(), "go, javascript, python")
	})
}

func TestNewRegistryRejects(t *testing.T) {
	exec := sandboxtest.New(echoArgs)
	python, err := NewInterpreted(PythonSpec(), exec)
	require.NoError(t, err)

	t.Run("Nil", func(t *testing.T) {
		_, err := NewRegistry(nil)
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := NewRegistry()
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		_, err := NewRegistry(python, python)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("AliasCollision", func(t *testing.T) {
		spec := JavaScriptSpec()
		spec.Aliases = []string{"py"}
		clash, err := NewInterpreted(spec, exec)
		require.NoError(t, err)

		_, err = NewRegistry(python, clash)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"py"`)
	})
}
